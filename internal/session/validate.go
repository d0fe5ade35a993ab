package session

import (
	"fmt"
	"regexp"
)

// DefaultProfile is used when no -profile flag is given.
const DefaultProfile = "main"

var nameRegexp = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// ValidateProfile checks that name conforms to profile naming rules.
func ValidateProfile(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("invalid profile name %q: must match ^[a-z0-9_-]{1,64}$", name)
	}
	return nil
}
