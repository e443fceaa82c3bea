package domain

// Employee is the directory record for a registered account inside its organization.
// PK: org_id, SK: email.
type Employee struct {
	OrganizationID  string   `json:"organization_id" dynamodbav:"org_id"`
	Email           string   `json:"email" dynamodbav:"email"`
	EmployeeID      string   `json:"emp_id" dynamodbav:"emp_id"`
	Name            string   `json:"name" dynamodbav:"name"`
	Role            string   `json:"role" dynamodbav:"role"`
	FeaturesAvailed []string `json:"features_availed" dynamodbav:"features_availed"`
}
