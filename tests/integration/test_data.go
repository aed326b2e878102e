package integration

import (
	"fmt"
	"time"
)

// TestAccount generates unique test account credentials using timestamp
func TestAccount(suffix string) (email, password string) {
	ts := time.Now().Unix()
	email = fmt.Sprintf("test-%d-%s@example.com", ts, suffix)
	password = "CorrectHorse9!"
	return
}
