package eas

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"

	"github.com/escrow-research/oracle-engine/internal/domain/entity"
)

var (
	testOracle  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	testEventID = common.BytesToHash([]byte{0xee})
)

func testSubscriber(resolve attestationResolver) *subscriber {
	cfg := Config{
		HTTPURL: "http://localhost:8545",
		EAS:     common.HexToAddress("0x1"),
		Arbiter: common.HexToAddress("0x2"),
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	cfg.applyDefaults()
	return newSubscriber(cfg, testOracle, testEventID, resolve)
}

func notification(topics ...common.Hash) []byte {
	payload := `{"jsonrpc":"2.0","method":"eth_subscription","params":{"subscription":"0x1","result":{"topics":[`
	for i, topic := range topics {
		if i > 0 {
			payload += ","
		}
		payload += fmt.Sprintf("%q", topic.Hex())
	}
	payload += `],"data":"0x","removed":false}}}`
	return []byte(payload)
}

func TestHandleMessageResolvesAndDelivers(t *testing.T) {
	uid := common.BytesToHash([]byte{1})
	sub := testSubscriber(func(ctx context.Context, got common.Hash) (*entity.Attestation, error) {
		if got != uid {
			t.Errorf("expected resolution of %s, got %s", uid.Hex(), got.Hex())
		}
		return &entity.Attestation{UID: got}, nil
	})

	msg := notification(testEventID, uid, addressTopic(testOracle))
	if err := sub.handleMessage(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case att := <-sub.Events():
		if att.UID != uid {
			t.Errorf("expected %s, got %s", uid.Hex(), att.UID.Hex())
		}
	case <-time.After(time.Second):
		t.Fatal("no attestation delivered")
	}
}

func TestHandleMessageIgnoresNonSubscriptionFrames(t *testing.T) {
	sub := testSubscriber(func(ctx context.Context, uid common.Hash) (*entity.Attestation, error) {
		t.Fatal("resolver must not be called")
		return nil, nil
	})

	if err := sub.handleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"result":"0xabc"}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHandleMessageIgnoresForeignEvents(t *testing.T) {
	sub := testSubscriber(func(ctx context.Context, uid common.Hash) (*entity.Attestation, error) {
		t.Fatal("resolver must not be called")
		return nil, nil
	})

	other := common.BytesToHash([]byte{0xdd})
	msg := notification(other, common.BytesToHash([]byte{1}), addressTopic(testOracle))
	if err := sub.handleMessage(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHandleMessageSkipsRemovedLogs(t *testing.T) {
	sub := testSubscriber(func(ctx context.Context, uid common.Hash) (*entity.Attestation, error) {
		t.Fatal("resolver must not be called for removed logs")
		return nil, nil
	})

	payload := fmt.Sprintf(
		`{"jsonrpc":"2.0","method":"eth_subscription","params":{"subscription":"0x1","result":{"topics":[%q,%q,%q],"data":"0x","removed":true}}}`,
		testEventID.Hex(), common.BytesToHash([]byte{1}).Hex(), addressTopic(testOracle).Hex(),
	)
	if err := sub.handleMessage(context.Background(), []byte(payload)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHandleMessageResolverFailure(t *testing.T) {
	sub := testSubscriber(func(ctx context.Context, uid common.Hash) (*entity.Attestation, error) {
		return nil, errors.New("rpc unavailable")
	})

	msg := notification(testEventID, common.BytesToHash([]byte{1}), addressTopic(testOracle))
	if err := sub.handleMessage(context.Background(), msg); err == nil {
		t.Fatal("expected the resolver failure to surface")
	}
}

func TestRunSurfacesSubscriptionRejection(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		reply := `{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"notifications not supported"}}`
		conn.WriteMessage(websocket.TextMessage, []byte(reply))
		conn.ReadMessage()
	}))
	defer srv.Close()

	cfg := Config{
		HTTPURL:      "http://localhost:8545",
		WebSocketURL: "ws" + strings.TrimPrefix(srv.URL, "http"),
		EAS:          common.HexToAddress("0x1"),
		Arbiter:      common.HexToAddress("0x2"),
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	cfg.applyDefaults()
	sub := newSubscriber(cfg, testOracle, testEventID, func(ctx context.Context, uid common.Hash) (*entity.Attestation, error) {
		t.Error("resolver must not be called")
		return nil, nil
	})
	sub.start(context.Background())
	defer sub.Close()

	select {
	case err := <-sub.Err():
		if !errors.Is(err, errSubscriptionRejected) {
			t.Fatalf("expected the rejection to surface, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no error surfaced for a rejected subscription")
	}

	select {
	case _, ok := <-sub.Events():
		if ok {
			t.Fatal("expected the event channel to close after a rejection")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("event channel left open after a rejection")
	}
}

func TestRunGivesUpWithoutConnection(t *testing.T) {
	cfg := Config{
		HTTPURL:            "http://localhost:8545",
		WebSocketURL:       "ws://127.0.0.1:1",
		EAS:                common.HexToAddress("0x1"),
		Arbiter:            common.HexToAddress("0x2"),
		InitialBackoff:     time.Millisecond,
		MaxBackoff:         5 * time.Millisecond,
		MaxConnectAttempts: 2,
		Logger:             slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	cfg.applyDefaults()
	sub := newSubscriber(cfg, testOracle, testEventID, func(ctx context.Context, uid common.Hash) (*entity.Attestation, error) {
		t.Error("resolver must not be called")
		return nil, nil
	})
	sub.start(context.Background())
	defer sub.Close()

	select {
	case err := <-sub.Err():
		if err == nil {
			t.Fatal("expected an error after exhausted connect attempts")
		}
	case <-time.After(10 * time.Second):
		t.Fatal("stream kept retrying a dead endpoint")
	}
}

func TestAddressTopicPadsLeft(t *testing.T) {
	got := addressTopic(testOracle)
	want := common.HexToHash("0x00000000000000000000000000000000000000000000000000000000000000aa")
	if got != want {
		t.Errorf("expected %s, got %s", want.Hex(), got.Hex())
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for empty config")
	}

	cfg = Config{
		HTTPURL: "http://localhost:8545",
		EAS:     common.HexToAddress("0x1"),
		Arbiter: common.HexToAddress("0x2"),
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
