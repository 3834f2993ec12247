package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"service_hours_backend/domain/registration"
)

// Duration accepts Go duration strings ("72h", "15m") in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// PolicyFile is the YAML shape of the verification policy. Unset fields keep
// their defaults.
type PolicyFile struct {
	MatchThreshold      *float64  `yaml:"match_threshold"`
	DescriptorDimension *int      `yaml:"descriptor_dimension"`
	MinDescriptors      *int      `yaml:"min_descriptors"`
	Quorum              *int      `yaml:"quorum"`
	FeedbackOffset      *Duration `yaml:"feedback_offset"`
	FeedbackWindow      *Duration `yaml:"feedback_window"`
	CheckoutGrace       *Duration `yaml:"checkout_grace"`
	RequireProfile      *bool     `yaml:"require_profile"`
}

// LoadPolicy returns the default policy, overridden by the file at path when
// path is not empty.
func LoadPolicy(path string) (registration.Policy, error) {
	policy := registration.DefaultPolicy()
	if path == "" {
		return policy, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return policy, fmt.Errorf("error reading policy file: %w", err)
	}
	return ParsePolicy(raw)
}

func ParsePolicy(raw []byte) (registration.Policy, error) {
	policy := registration.DefaultPolicy()

	var file PolicyFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return policy, fmt.Errorf("error parsing policy file: %w", err)
	}

	if file.MatchThreshold != nil {
		if *file.MatchThreshold <= 0 {
			return policy, fmt.Errorf("match_threshold must be positive")
		}
		policy.MatchThreshold = *file.MatchThreshold
	}
	if file.DescriptorDimension != nil {
		if *file.DescriptorDimension <= 0 {
			return policy, fmt.Errorf("descriptor_dimension must be positive")
		}
		policy.DescriptorDimension = *file.DescriptorDimension
	}
	if file.MinDescriptors != nil {
		if *file.MinDescriptors <= 0 {
			return policy, fmt.Errorf("min_descriptors must be positive")
		}
		policy.MinDescriptors = *file.MinDescriptors
	}
	if file.Quorum != nil {
		if *file.Quorum <= 0 {
			return policy, fmt.Errorf("quorum must be positive")
		}
		policy.Attendance.Quorum = *file.Quorum
	}
	if file.FeedbackOffset != nil {
		if *file.FeedbackOffset < 0 {
			return policy, fmt.Errorf("feedback_offset must not be negative")
		}
		policy.FeedbackOffset = time.Duration(*file.FeedbackOffset)
	}
	if file.FeedbackWindow != nil {
		if *file.FeedbackWindow <= 0 {
			return policy, fmt.Errorf("feedback_window must be positive")
		}
		policy.FeedbackWindow = time.Duration(*file.FeedbackWindow)
	}
	if file.CheckoutGrace != nil {
		if *file.CheckoutGrace < 0 {
			return policy, fmt.Errorf("checkout_grace must not be negative")
		}
		policy.CheckoutGrace = time.Duration(*file.CheckoutGrace)
	}
	if file.RequireProfile != nil {
		policy.RequireProfile = *file.RequireProfile
	}
	return policy, nil
}
