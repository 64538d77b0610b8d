package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	httpmiddleware "github.com/wolfman30/medspa-winback/internal/http/middleware"
)

type config struct {
	baseURL    string
	secret     string
	defaultJob string
	timeout    time.Duration
}

func loadConfig() (config, error) {
	baseURL := strings.TrimSpace(os.Getenv("PUBLIC_BASE_URL"))
	if baseURL == "" {
		return config{}, errors.New("PUBLIC_BASE_URL is required")
	}
	secret := strings.TrimSpace(os.Getenv("WINBACK_SCHEDULER_SECRET"))
	if secret == "" {
		return config{}, errors.New("WINBACK_SCHEDULER_SECRET is required")
	}

	timeout := 10 * time.Minute
	if raw := strings.TrimSpace(os.Getenv("WINBACK_TRIGGER_TIMEOUT")); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return config{}, fmt.Errorf("invalid WINBACK_TRIGGER_TIMEOUT: %w", err)
		}
		timeout = parsed
	}

	job := strings.TrimSpace(os.Getenv("WINBACK_JOB"))
	if job == "" {
		job = "run"
	}

	return config{
		baseURL:    strings.TrimRight(baseURL, "/"),
		secret:     secret,
		defaultJob: job,
		timeout:    timeout,
	}, nil
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		panic(err)
	}

	client := &http.Client{Timeout: cfg.timeout}
	lambda.Start(func(ctx context.Context, evt events.CloudWatchEvent) (string, error) {
		return handle(ctx, cfg, client, evt)
	})
}

type triggerDetail struct {
	Job string `json:"job"`
}

// handle forwards a scheduled EventBridge event to the API's scheduler
// endpoint and returns the job summary body.
func handle(ctx context.Context, cfg config, client *http.Client, evt events.CloudWatchEvent) (string, error) {
	job := cfg.defaultJob
	if len(evt.Detail) > 0 {
		var detail triggerDetail
		if err := json.Unmarshal(evt.Detail, &detail); err == nil && strings.TrimSpace(detail.Job) != "" {
			job = strings.TrimSpace(detail.Job)
		}
	}
	switch job {
	case "run", "attribute":
	default:
		return "", fmt.Errorf("unknown win-back job %q", job)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.baseURL+"/internal/winback/"+job, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set(httpmiddleware.SchedulerSecretHeader, cfg.secret)

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call %s: %w", job, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	switch {
	case resp.StatusCode == http.StatusConflict:
		// another run holds the lock; nothing to retry
		return fmt.Sprintf(`{"job":%q,"status":"already_running"}`, job), nil
	case resp.StatusCode >= 300:
		return "", fmt.Errorf("%s returned %d: %s", job, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return string(body), nil
}
