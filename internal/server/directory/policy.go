package directory

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode"
)

// PasswordPolicy lists the requirements a new password has to satisfy.
type PasswordPolicy struct {
	MinLength        int
	RequireDigit     bool
	RequireLowercase bool
	RequireUppercase bool
	RequireSymbol    bool
}

// DefaultPasswordPolicy requires at least one character of every class and a
// minimum length of 4.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:        4,
		RequireDigit:     true,
		RequireLowercase: true,
		RequireUppercase: true,
		RequireSymbol:    true,
	}
}

// Check returns every rule the password violates, in a stable order.
func (p PasswordPolicy) Check(password string) []string {
	var hasDigit, hasLower, hasUpper, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case !unicode.IsLetter(r):
			hasSymbol = true
		}
	}

	var errs []string
	if len([]rune(password)) < p.MinLength {
		errs = append(errs, fmt.Sprintf("Passwords must be at least %d characters.", p.MinLength))
	}
	if p.RequireSymbol && !hasSymbol {
		errs = append(errs, "Passwords must have at least one non alphanumeric character.")
	}
	if p.RequireDigit && !hasDigit {
		errs = append(errs, "Passwords must have at least one digit ('0'-'9').")
	}
	if p.RequireLowercase && !hasLower {
		errs = append(errs, "Passwords must have at least one lowercase ('a'-'z').")
	}
	if p.RequireUppercase && !hasUpper {
		errs = append(errs, "Passwords must have at least one uppercase ('A'-'Z').")
	}
	return errs
}

// NormalizeEmail trims and lowercases an address so that lookups are case
// insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func checkEmail(email string) []string {
	if email == "" {
		return []string{"Email is required."}
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return []string{fmt.Sprintf("Email '%s' is invalid.", email)}
	}
	return nil
}
