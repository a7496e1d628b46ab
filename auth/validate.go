package auth

import (
	"strings"

	"enquiryflow/validation"
)

var (
	usernameRule = validation.Rule{
		Field: "username",
		Tags:  "required,min=3,max=50,username",
		Messages: map[string]string{
			"required": "Username is required",
			"username": "Username can only contain letters, numbers, and underscores",
			"":         "Username must be between 3 and 50 characters",
		},
	}
	passwordRule = validation.Rule{
		Field: "password",
		Tags:  "required,min=6,mixedcase",
		Messages: map[string]string{
			"required":  "Password is required",
			"min":       "Password must be at least 6 characters",
			"mixedcase": "Password must contain at least one lowercase letter, one uppercase letter, and one number",
		},
	}
	roleRule = validation.Rule{
		Field:    "role",
		Tags:     "oneof=admin user salesperson",
		Messages: map[string]string{"": "Role must be one of admin, user or salesperson"},
	}
)

// validateRegistration trims and checks every field and returns the cleaned
// request. All violations are reported together.
func validateRegistration(req RegisterRequest) (RegisterRequest, error) {
	var errs validation.Errors
	out := RegisterRequest{Password: req.Password}

	out.Username = strings.TrimSpace(req.Username)
	errs.Merge(usernameRule.Check(out.Username))

	email, fe := validation.Email("email", &req.Email)
	out.Email = email
	errs.Merge(fe)

	mobile, fe := validation.Mobile("mobile", &req.Mobile)
	out.Mobile = mobile
	errs.Merge(fe)

	errs.Merge(passwordRule.Check(req.Password))

	out.Role = Role(strings.TrimSpace(string(req.Role)))
	if out.Role == "" {
		out.Role = RoleUser
	}
	errs.Merge(roleRule.Check(string(out.Role)))

	if err := errs.Err(); err != nil {
		return RegisterRequest{}, err
	}
	return out, nil
}

func isValidRole(role Role) bool {
	switch role {
	case RoleAdmin, RoleUser, RoleSalesperson:
		return true
	default:
		return false
	}
}
