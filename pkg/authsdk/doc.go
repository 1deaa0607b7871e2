/*
Package authsdk is the Go client for the sessions service.

# SDKClient vs Session

SDKClient covers the unauthenticated endpoints and logs users in:

	client := authsdk.NewSDKClient("https://sessions.example.com")

	health, err := client.GetReadiness(ctx)

	session, err := client.Login(ctx, authsdk.LoginRequest{
		UsernameOrEmail: "alice",
		Password:        "secret",
		ClientType:      "web",
		DeviceName:      "Firefox on Linux",
	})

A Session holds the access and refresh tokens of one device and refreshes
the access token shortly before it expires:

	sessions, err := session.ListSessions(ctx, "")
	n, err := session.LogoutAll(ctx, "")
	err = session.Logout(ctx)

# Errors

Every non-2xx response becomes an *APIError carrying the server's error
code. A login refused because the device slot is busy has the code
"session_conflict" and names the client type:

	_, err := client.Login(ctx, req)
	var apiErr *authsdk.APIError
	if errors.As(err, &apiErr) && apiErr.IsConflict() {
		fmt.Println("already logged in on", apiErr.ClientType)
	}

# Thread Safety

Sessions are safe for concurrent use. Token state is guarded by a
read/write lock and at most one refresh runs at a time.
*/
package authsdk
