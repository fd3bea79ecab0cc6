package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/featherline/weapp-bridge/sdk"
)

func main() {
	// Production-shaped configuration: jittered backoff, a circuit
	// breaker per endpoint and an observer wired to metrics.
	collector := sdk.NewMetricsCollector()

	config := sdk.DefaultConfig().
		WithCredentials(
			sdk.AppID(os.Getenv("WEAPP_APP_ID")),
			sdk.AppSecret(os.Getenv("WEAPP_APP_SECRET")),
		).
		WithRequestTimeout(10 * time.Second).
		WithRetries(5).
		WithRetryStrategy(sdk.NewJitteredBackoff(100*time.Millisecond, 5*time.Second)).
		WithCircuitBreaker(sdk.CircuitBreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          30 * time.Second,
		}).
		WithObserver(collector)

	client, err := sdk.NewClient(config)
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	ctx := context.Background()
	openID := sdk.OpenID(os.Getenv("WEAPP_OPEN_ID"))

	// Content moderation before accepting user text
	fmt.Println("--- Content moderation ---")
	result, err := client.MsgSecCheck(ctx, &sdk.MsgSecCheckRequest{
		OpenID:  openID,
		Scene:   sdk.SceneComment,
		Content: "A perfectly harmless comment",
	})
	if err != nil {
		log.Printf("MsgSecCheck: %v", err)
	} else {
		fmt.Printf("✓ Moderation suggestion: %+v\n", result)
	}

	// One-time subscribe message
	fmt.Println("\n--- Subscribe message ---")
	err = client.SendSubscribeMessage(ctx, &sdk.SubscribeMessage{
		ToUser:     openID,
		TemplateID: os.Getenv("WEAPP_TEMPLATE_ID"),
		Page:       "pages/orders/detail?id=42",
		Data: map[string]sdk.SubscribeValue{
			"thing1": {Value: "Your order has shipped"},
			"date2":  {Value: time.Now().Format("2006-01-02 15:04")},
		},
	})
	if err != nil {
		var pe *sdk.PlatformError
		if errors.As(err, &pe) {
			// 43101: the user has not granted this subscription
			log.Printf("SendSubscribeMessage rejected: code %d: %s", pe.Code, pe.Message)
		} else {
			log.Printf("SendSubscribeMessage: %v", err)
		}
	} else {
		fmt.Println("✓ Subscribe message sent")
	}

	// Phone number exchange
	fmt.Println("\n--- Phone number ---")
	if phoneCode := os.Getenv("WEAPP_PHONE_CODE"); phoneCode != "" {
		phone, err := client.GetPhoneNumber(ctx, phoneCode)
		if err != nil {
			log.Printf("GetPhoneNumber: %v", err)
		} else {
			fmt.Printf("✓ Phone: +%s %s\n", phone.CountryCode, phone.PurePhoneNumber)
		}
	}

	// API quota inspection
	fmt.Println("\n--- Quota ---")
	quota, err := client.GetAPIQuota(ctx, "/cgi-bin/message/subscribe/send")
	if err != nil {
		log.Printf("GetAPIQuota: %v", err)
	} else {
		fmt.Printf("✓ Quota: %+v\n", quota)
	}

	fmt.Printf("\nPipeline metrics: %+v\n", collector.GetMetrics())
}
