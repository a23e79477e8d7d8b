package models

// Profile is the display subset of a marketplace user. Users are owned by the
// account service; this module only reads them.
type Profile struct {
	ID             string `json:"_id"`
	Name           string `json:"name"`
	Email          string `json:"email,omitempty"`
	ProfilePicture string `json:"profilePicture,omitempty"`
}

// UnknownProfile stands in for a user that can no longer be resolved.
func UnknownProfile(id string) *Profile {
	return &Profile{ID: NormalizeID(id)}
}
