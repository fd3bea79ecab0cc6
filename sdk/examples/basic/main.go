package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/featherline/weapp-bridge/sdk"
)

func main() {
	// Create a client with default configuration
	config := sdk.DefaultConfig().
		WithCredentials(
			sdk.AppID(os.Getenv("WEAPP_APP_ID")),
			sdk.AppSecret(os.Getenv("WEAPP_APP_SECRET")),
		).
		WithRequestTimeout(10 * time.Second).
		WithRetries(3)

	client, err := sdk.NewClient(config)
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	ctx := context.Background()

	// Example 1: Exchange a login code for a session
	fmt.Println("--- Example 1: Login ---")
	jsCode := os.Getenv("WEAPP_JS_CODE") // from wx.login() on the client
	if jsCode == "" {
		log.Println("Set WEAPP_JS_CODE to a fresh wx.login() code to run the login example")
	} else {
		session, err := client.Code2Session(ctx, jsCode)
		if err != nil {
			log.Fatalf("Failed to exchange code: %v", err)
		}
		fmt.Printf("✓ Logged in openid=%s union_id=%s\n", session.OpenID, session.UnionID)

		// Example 2: Decrypt user data with the session key
		fmt.Println("\n--- Example 2: Decrypt user data ---")
		encrypted := os.Getenv("WEAPP_ENCRYPTED_DATA")
		iv := os.Getenv("WEAPP_IV")
		if encrypted != "" && iv != "" {
			plaintext, err := sdk.DecryptUserData(session.SessionKey, encrypted, iv)
			if err != nil {
				log.Fatalf("Failed to decrypt: %v", err)
			}

			var profile map[string]interface{}
			if err := json.Unmarshal(plaintext, &profile); err != nil {
				log.Fatalf("Failed to decode profile: %v", err)
			}
			fmt.Printf("✓ Decrypted profile: %+v\n", profile)
		}
	}

	// Example 3: Generate a Mini Program code image
	fmt.Println("\n--- Example 3: QR code ---")
	image, err := client.GetWxaCode(ctx, &sdk.WxaCodeRequest{
		Path:  "pages/index/index?ref=example",
		Width: 430,
	})
	if err != nil {
		log.Fatalf("Failed to generate code image: %v", err)
	}
	if err := os.WriteFile("wxacode.png", image, 0o644); err != nil {
		log.Fatalf("Failed to write image: %v", err)
	}
	fmt.Printf("✓ Wrote wxacode.png (%d bytes)\n", len(image))

	// Example 4: Generate a shareable URL link
	fmt.Println("\n--- Example 4: URL link ---")
	link, err := client.GenerateURLLink(ctx, &sdk.URLLinkRequest{
		Path:  "pages/index/index",
		Query: "ref=example",
	})
	if err != nil {
		log.Fatalf("Failed to generate link: %v", err)
	}
	fmt.Printf("✓ Link: %s\n", link)

	fmt.Println("\nDone.")
}
