package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"devcollab/internal/api"
	"devcollab/internal/config"
)

// AddUser creates a user through the running server's admin API.
func AddUser(email string, cfg *config.Config) error {
	reqBody, err := json.Marshal(api.AddUserRequest{Email: email})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("http://%s/admin/users", cfg.AdminAddr)
	resp, err := http.Post(url, "application/json", bytes.NewBuffer(reqBody))
	if err != nil {
		return fmt.Errorf("failed to call admin API: %w. Is the server running?", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("failed to add user (Status: %d): %s", resp.StatusCode, string(body))
	}

	var result api.AddUserResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if result.User == nil {
		return fmt.Errorf("admin API returned no user")
	}

	fmt.Printf("\nUser Created Successfully!\n")
	fmt.Printf("ID:        %s\n", result.User.ID)
	fmt.Printf("Email:     %s\n", result.User.Email)
	fmt.Printf("Password:  %s\n", result.Password)
	fmt.Printf("Login at:  %s\n\n", result.LoginURL)
	fmt.Println("The password is shown only once, please share it with the user.")
	return nil
}
