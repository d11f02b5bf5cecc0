package llmstream

import (
	"embed"
	"fmt"
	"os"
	"path"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

//go:embed config/profiles/*.yaml
var embeddedProfiles embed.FS

// Profiles Philosophy:
//
// A profile holds the per-vendor DATA a decoder needs: which grammar family
// the vendor streams, the "[DONE]" sentinel, extra JSON paths carrying
// reasoning text, and the finish-reason mapping table. The decoding LOGIC
// lives in providers/<family>.
//
// Vendors add finish reasons and reasoning fields faster than libraries
// release. Library users can override embedded profiles by:
//  1. Calling LoadProfilesFromFile() with custom YAML
//  2. Calling RegisterProfile() programmatically

// Profile is the decoding configuration for one provider
type Profile struct {
	Version     string     `yaml:"version"`      // Semantic version (e.g., "1.0.0")
	LastUpdated string     `yaml:"last_updated"` // ISO 8601 date (e.g., "2025-01-15")
	Provider    ProviderID `yaml:"provider"`
	Family      Family     `yaml:"family"`

	// ContentType is the content type the vendor streams with (informational;
	// the frame reader picks its decoder from the actual response header)
	ContentType string `yaml:"content_type"`

	// DoneSentinel is the data payload that terminates an OpenAI-family stream
	DoneSentinel string `yaml:"done_sentinel"`

	// ReasoningPaths are gjson paths (relative to one frame's JSON) that carry
	// reasoning text in addition to the family's standard field
	ReasoningPaths []string `yaml:"reasoning_paths"`

	// FinishReasons maps vendor finish/stop reasons to canonical names
	// (unknown, end_turn, length, tool_calls, error)
	FinishReasons map[string]string `yaml:"finish_reasons"`
}

// MapFinishReason converts a vendor finish reason using the profile table.
// Lookup is exact first, then case-insensitive. Unmapped values are Unknown.
func (p *Profile) MapFinishReason(raw string) FinishReason {
	if p == nil || raw == "" {
		return FinishReasonUnknown
	}
	if name, ok := p.FinishReasons[raw]; ok {
		return ParseFinishReason(name)
	}
	for vendor, name := range p.FinishReasons {
		if strings.EqualFold(vendor, raw) {
			return ParseFinishReason(name)
		}
	}
	return FinishReasonUnknown
}

// Validate checks that the profile is usable
func (p *Profile) Validate() error {
	if p.Provider == "" {
		return fmt.Errorf("profile is missing provider")
	}
	switch p.Family {
	case FamilyOpenAI, FamilyAnthropic, FamilyCohere:
	default:
		return fmt.Errorf("profile %s: unknown family %q", p.Provider, p.Family)
	}
	for vendor, name := range p.FinishReasons {
		if ParseFinishReason(name) == FinishReasonUnknown && name != FinishReasonUnknown.String() {
			return fmt.Errorf("profile %s: finish reason %q maps to unknown canonical name %q", p.Provider, vendor, name)
		}
	}
	return nil
}

// ProfileRegistry manages provider profiles
type ProfileRegistry struct {
	profiles map[ProviderID]*Profile
	mu       sync.RWMutex
}

var (
	globalProfiles     *ProfileRegistry
	globalProfilesOnce sync.Once
)

// GetProfileRegistry returns the global profile registry (singleton)
func GetProfileRegistry() *ProfileRegistry {
	globalProfilesOnce.Do(func() {
		globalProfiles = &ProfileRegistry{
			profiles: make(map[ProviderID]*Profile),
		}
		if err := globalProfiles.loadEmbeddedProfiles(); err != nil {
			// Don't panic - GetProfile reports missing profiles
			zap.L().Warn("failed to load embedded profiles", zap.Error(err))
		}
	})
	return globalProfiles
}

// loadEmbeddedProfiles loads every YAML file under config/profiles
func (r *ProfileRegistry) loadEmbeddedProfiles() error {
	entries, err := embeddedProfiles.ReadDir("config/profiles")
	if err != nil {
		return fmt.Errorf("failed to list embedded profiles: %w", err)
	}

	for _, entry := range entries {
		data, err := embeddedProfiles.ReadFile(path.Join("config/profiles", entry.Name()))
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", entry.Name(), err)
		}
		if err := r.loadProfile(data); err != nil {
			return fmt.Errorf("embedded profile %s: %w", entry.Name(), err)
		}
	}
	return nil
}

func (r *ProfileRegistry) loadProfile(data []byte) error {
	var profile Profile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return fmt.Errorf("failed to unmarshal profile: %w", err)
	}
	if err := profile.Validate(); err != nil {
		return err
	}

	r.RegisterProfile(&profile)
	return nil
}

// GetProfile returns the profile for a provider
func (r *ProfileRegistry) GetProfile(provider ProviderID) (*Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	profile, ok := r.profiles[provider]
	if !ok {
		return nil, fmt.Errorf("no profile found for provider %q: %w", provider, ErrUnsupportedProvider)
	}
	return profile, nil
}

// LoadProfilesFromFile loads a provider profile from a YAML file, replacing
// any profile registered for the same provider.
func (r *ProfileRegistry) LoadProfilesFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read profile file: %w", err)
	}
	return r.loadProfile(data)
}

// RegisterProfile programmatically registers a provider profile.
func (r *ProfileRegistry) RegisterProfile(profile *Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[profile.Provider] = profile
}

// GetProfile is a convenience function that calls the global registry's GetProfile.
func GetProfile(provider ProviderID) (*Profile, error) {
	return GetProfileRegistry().GetProfile(provider)
}

// LoadProfilesFromFile is a convenience function that calls the global registry's LoadProfilesFromFile.
func LoadProfilesFromFile(path string) error {
	return GetProfileRegistry().LoadProfilesFromFile(path)
}

// RegisterProfile is a convenience function that calls the global registry's RegisterProfile.
func RegisterProfile(profile *Profile) {
	GetProfileRegistry().RegisterProfile(profile)
}
