package domain

// Roles carried in the role claim. Accounts without a stored role are employees.
const (
	RoleEmployee = "employee"
	RoleEmployer = "employer"
)
