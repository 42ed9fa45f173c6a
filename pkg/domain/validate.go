package domain

import "strings"

// ValidateStorage checks the fields every persisted storage must carry.
func ValidateStorage(s Storage) error {
	if strings.TrimSpace(s.Name) == "" {
		return Invalid("name", "must not be empty")
	}
	if s.Capacity < 0 {
		return Invalid("capacity", "must not be negative")
	}
	return nil
}

// ValidateReagent checks the fields every persisted reagent must carry.
// Stock is left to the rules engine so that a negative value surfaces as a
// blocking violation.
func ValidateReagent(r Reagent) error {
	if strings.TrimSpace(r.Name) == "" {
		return Invalid("name", "must not be empty")
	}
	if r.StorageID == "" {
		return Invalid("storage_id", "is required")
	}
	return nil
}

// ValidateUsage checks the fields every persisted usage record must carry.
func ValidateUsage(u UsageRecord) error {
	if u.ReagentID == "" {
		return Invalid("reagent_id", "is required")
	}
	if u.Amount < 0 {
		return Invalid("amount", "must not be negative")
	}
	if strings.TrimSpace(u.UserName) == "" {
		return Invalid("user_name", "must not be empty")
	}
	return nil
}

// ValidateUser checks the fields every persisted user must carry.
func ValidateUser(u User) error {
	if strings.TrimSpace(u.Username) == "" {
		return Invalid("username", "must not be empty")
	}
	if u.Password == "" {
		return Invalid("password", "must not be empty")
	}
	return nil
}
