package dto

// OrganizationInfo is the public contact block shown to schools.
type OrganizationInfo struct {
	ContactFirstName string `json:"contact_first_name"`
	ContactLastName  string `json:"contact_last_name"`
	Telephone        string `json:"telephone"`
	Email            string `json:"email"`
}
