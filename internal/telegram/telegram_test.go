package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type recordedCall struct {
	Path string
	Body map[string]any
}

func setupMockBotAPI(t *testing.T, response string) (*httptest.Server, *[]recordedCall) {
	t.Helper()
	var calls []recordedCall
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("could not decode request body: %v", err)
		}
		calls = append(calls, recordedCall{Path: r.URL.Path, Body: body})
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func TestSendMessage(t *testing.T) {
	server, calls := setupMockBotAPI(t, `{"ok":true,"result":{}}`)
	client := NewClient(server.URL, "123:abc", time.Second)

	if err := client.SendMessage(context.Background(), 42, "hello", 7); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(*calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(*calls))
	}
	call := (*calls)[0]
	if call.Path != "/bot123:abc/sendMessage" {
		t.Errorf("unexpected path %q", call.Path)
	}
	if call.Body["chat_id"] != float64(42) || call.Body["text"] != "hello" || call.Body["reply_to_message_id"] != float64(7) {
		t.Errorf("unexpected body: %v", call.Body)
	}
}

func TestSendPhoto(t *testing.T) {
	server, calls := setupMockBotAPI(t, `{"ok":true}`)
	client := NewClient(server.URL+"/", "tok", time.Second)

	if err := client.SendPhoto(context.Background(), 1, "https://example.com/f.jpeg", "face_x.jpeg", 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	call := (*calls)[0]
	if call.Path != "/bottok/sendPhoto" {
		t.Errorf("unexpected path %q", call.Path)
	}
	if call.Body["photo"] != "https://example.com/f.jpeg" || call.Body["caption"] != "face_x.jpeg" {
		t.Errorf("unexpected body: %v", call.Body)
	}
}

func TestSendMediaGroup(t *testing.T) {
	server, calls := setupMockBotAPI(t, `{"ok":true}`)
	client := NewClient(server.URL, "tok", time.Second)

	urls := []string{"https://a/1", "https://a/2"}
	if err := client.SendMediaGroup(context.Background(), 5, urls, 9); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	media, ok := (*calls)[0].Body["media"].(string)
	if !ok {
		t.Fatalf("media must be a JSON-encoded string, got %T", (*calls)[0].Body["media"])
	}
	var decoded []InputMediaPhoto
	if err := json.Unmarshal([]byte(media), &decoded); err != nil {
		t.Fatalf("media is not valid JSON: %v", err)
	}
	if len(decoded) != 2 || decoded[0].Type != "photo" || decoded[1].Media != "https://a/2" {
		t.Errorf("unexpected media: %+v", decoded)
	}

	t.Run("rejects empty and oversized groups", func(t *testing.T) {
		if err := client.SendMediaGroup(context.Background(), 5, nil, 0); err == nil {
			t.Error("expected error for empty group")
		}
		if err := client.SendMediaGroup(context.Background(), 5, make([]string, MaxMediaGroupSize+1), 0); err == nil {
			t.Error("expected error for oversized group")
		}
	})
}

func TestSetWebhook(t *testing.T) {
	server, calls := setupMockBotAPI(t, `{"ok":true,"result":true}`)
	client := NewClient(server.URL, "tok", time.Second)

	if err := client.SetWebhook(context.Background(), "https://bot.example.com/telegram/webhook", "s3cret"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if (*calls)[0].Body["secret_token"] != "s3cret" {
		t.Errorf("secret not sent: %v", (*calls)[0].Body)
	}
}

func TestCall_Errors(t *testing.T) {
	t.Run("ok false", func(t *testing.T) {
		server, _ := setupMockBotAPI(t, `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`)
		err := NewClient(server.URL, "tok", time.Second).SendMessage(context.Background(), 1, "x", 0)
		if !errors.Is(err, ErrAPI) {
			t.Fatalf("expected ErrAPI, got %v", err)
		}
		if !strings.Contains(err.Error(), "chat not found") {
			t.Errorf("expected description in error, got %v", err)
		}
	})

	t.Run("missing token", func(t *testing.T) {
		err := NewClient("http://127.0.0.1:0", "", time.Second).SendMessage(context.Background(), 1, "x", 0)
		if err == nil {
			t.Error("expected error without token")
		}
	})

	t.Run("transport error hides token", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		server.Close()
		err := NewClient(server.URL, "secret-token", time.Second).SendMessage(context.Background(), 1, "x", 0)
		if err == nil {
			t.Fatal("expected error")
		}
		if strings.Contains(err.Error(), "secret-token") {
			t.Errorf("error leaks token: %v", err)
		}
	})
}

func TestUpdateDecoding(t *testing.T) {
	raw := `{"update_id":1,"message":{"message_id":10,"chat":{"id":99},"text":"Bob",
		"reply_to_message":{"message_id":9,"chat":{"id":99},"caption":"face_k.jpeg","photo":[{"file_id":"f","width":1,"height":1}]}}}`
	var u Update
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Message == nil || u.Message.Chat.ID != 99 || u.Message.Text != "Bob" {
		t.Fatalf("unexpected message: %+v", u.Message)
	}
	if !u.Message.ReplyToMessage.HasPhoto() || u.Message.ReplyToMessage.Caption != "face_k.jpeg" {
		t.Errorf("unexpected reply: %+v", u.Message.ReplyToMessage)
	}
	if u.Message.HasPhoto() {
		t.Error("text message should not report a photo")
	}
}
