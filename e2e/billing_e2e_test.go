//go:build e2e
// +build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	defaultHTTPBase = "http://localhost:48081"
	defaultGRPCAddr = "localhost:49091"

	grpcService = "/billing.BillingConnectorService/"
)

type httpClient struct {
	baseURL string
	client  *http.Client
}

func newHTTPClient(baseURL string) *httpClient {
	return &httpClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *httpClient) do(t *testing.T, method, path string, body []byte, headers map[string]string) (*http.Response, []byte) {
	t.Helper()

	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("new request failed: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		t.Fatalf("http request failed: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response failed: %v", err)
	}
	return resp, data
}

func operatorHeaders(apiKey string) map[string]string {
	headers := map[string]string{"X-Request-ID": fmt.Sprintf("e2e-http-%d", time.Now().UnixNano())}
	if apiKey != "" {
		headers["X-API-Key"] = apiKey
	}
	return headers
}

func waitForHTTP(baseURL string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	client := &http.Client{Timeout: 2 * time.Second}
	for time.Now().Before(deadline) {
		resp, err := client.Get(baseURL + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("http service not ready at %s", baseURL)
}

func waitForGRPC(addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("grpc service not ready at %s", addr)
}

func grpcContext(apiKey, requestID string) context.Context {
	ctx := context.Background()
	if requestID != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "x-request-id", requestID)
	}
	if apiKey != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "x-api-key", apiKey)
	}
	return ctx
}

func invoke(ctx context.Context, conn *grpc.ClientConn, method string, fields map[string]interface{}) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	err = conn.Invoke(ctx, grpcService+method, in, out)
	return out, err
}

func TestBillingConnectorE2E(t *testing.T) {
	httpBase := envOrDefault("BILLING_HTTP_URL", defaultHTTPBase)
	grpcAddr := envOrDefault("BILLING_GRPC_ADDR", defaultGRPCAddr)

	if err := waitForHTTP(httpBase, 30*time.Second); err != nil {
		t.Fatalf("http not ready: %v", err)
	}
	if err := waitForGRPC(grpcAddr, 30*time.Second); err != nil {
		t.Fatalf("grpc not ready: %v", err)
	}

	client := newHTTPClient(httpBase)
	unknownTenant := uuid.NewString()

	conn, err := grpc.NewClient(grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("grpc dial failed: %v", err)
	}
	defer conn.Close()

	t.Run("HealthIsPublic", func(t *testing.T) {
		resp, body := client.do(t, http.MethodGet, "/health", nil, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", resp.StatusCode, string(body))
		}
	})

	t.Run("MetricsExposed", func(t *testing.T) {
		resp, body := client.do(t, http.MethodGet, "/metrics", nil, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		if !bytes.Contains(body, []byte("go_goroutines")) {
			t.Fatalf("expected go collector metrics in output")
		}
	})

	t.Run("WebhookUnsupportedProvider", func(t *testing.T) {
		resp, body := client.do(t, http.MethodPost, "/webhooks/providers/unknown", []byte(`{"id":"X"}`), nil)
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("expected 404, got %d: %s", resp.StatusCode, string(body))
		}
	})

	t.Run("WebhookUnknownTenantSecret", func(t *testing.T) {
		headers := map[string]string{"X-Tenant-Secret": "does-not-exist"}
		resp, body := client.do(t, http.MethodPost, "/webhooks/providers/getnet", []byte(`{"id":"X","status":"PAID","amount":10}`), headers)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d: %s", resp.StatusCode, string(body))
		}
	})

	t.Run("OperatorMissingRequestID", func(t *testing.T) {
		headers := map[string]string{"X-API-Key": operatorAPIKey()}
		resp, _ := client.do(t, http.MethodPost, "/operator/tenants/"+unknownTenant+"/reconcile", []byte(`{}`), headers)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", resp.StatusCode)
		}
	})

	t.Run("OperatorMissingAPIKey", func(t *testing.T) {
		resp, _ := client.do(t, http.MethodPost, "/operator/tenants/"+unknownTenant+"/reconcile", []byte(`{}`), operatorHeaders(""))
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", resp.StatusCode)
		}
	})

	t.Run("OperatorNoAccess", func(t *testing.T) {
		resp, _ := client.do(t, http.MethodPost, "/operator/tenants/"+unknownTenant+"/reconcile", []byte(`{}`), operatorHeaders(noAccessAPIKey()))
		if resp.StatusCode != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", resp.StatusCode)
		}
	})

	t.Run("OperatorReconcileUnknownTenant", func(t *testing.T) {
		payload, _ := json.Marshal(map[string]string{"from": "2026-01-01", "to": "2026-01-02"})
		resp, body := client.do(t, http.MethodPost, "/operator/tenants/"+unknownTenant+"/reconcile", payload, operatorHeaders(operatorAPIKey()))
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("expected 404, got %d: %s", resp.StatusCode, string(body))
		}
	})

	t.Run("OperatorConfirmUnknownTransaction", func(t *testing.T) {
		resp, body := client.do(t, http.MethodPost, "/operator/tenants/"+unknownTenant+"/transactions/missing/confirm-billing", nil, operatorHeaders(operatorAPIKey()))
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("expected 404, got %d: %s", resp.StatusCode, string(body))
		}
	})

	t.Run("GRPCMissingRequestID", func(t *testing.T) {
		_, err := invoke(grpcContext(operatorAPIKey(), ""), conn, "Health", nil)
		if status.Code(err) != codes.InvalidArgument {
			t.Fatalf("expected InvalidArgument, got %v", err)
		}
	})

	t.Run("GRPCNoAccess", func(t *testing.T) {
		_, err := invoke(grpcContext(noAccessAPIKey(), "e2e-grpc-no-access"), conn, "Health", nil)
		if status.Code(err) != codes.PermissionDenied {
			t.Fatalf("expected PermissionDenied, got %v", err)
		}
	})

	t.Run("GRPCHealth", func(t *testing.T) {
		out, err := invoke(grpcContext(operatorAPIKey(), "e2e-grpc-health"), conn, "Health", nil)
		if err != nil {
			t.Fatalf("health failed: %v", err)
		}
		if out.GetFields()["status"].GetStringValue() != "ok" {
			t.Fatalf("unexpected health response: %v", out)
		}
	})

	t.Run("GRPCRefundUnknownTransaction", func(t *testing.T) {
		_, err := invoke(grpcContext(operatorAPIKey(), "e2e-grpc-refund"), conn, "RequestRefund", map[string]interface{}{
			"tenant_id":   unknownTenant,
			"external_id": "missing",
			"reason":      "customer request",
		})
		if status.Code(err) != codes.NotFound {
			t.Fatalf("expected NotFound, got %v", err)
		}
	})
}
