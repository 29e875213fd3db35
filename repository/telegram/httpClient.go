package telegramrepo

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/KittNeKit/BookWise/util/httpx"
)

const baseURL = "https://api.telegram.org"

type httpNotifier struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
}

func NewHTTP(token, chatID string) Notifier {
	return &httpNotifier{token: token, chatID: chatID, baseURL: baseURL, client: httpx.Client()}
}

// NewHTTPWithBase points the notifier at a non-default endpoint (tests).
func NewHTTPWithBase(token, chatID, base string) Notifier {
	return &httpNotifier{token: token, chatID: chatID, baseURL: base, client: httpx.Client()}
}

func (n *httpNotifier) Send(ctx context.Context, text string) error {
	if n.chatID == "" {
		// chat destination not configured, silently skip
		return nil
	}

	u := fmt.Sprintf("%s/bot%s/sendMessage?chat_id=%s&text=%s",
		n.baseURL, n.token, url.QueryEscape(n.chatID), url.QueryEscape(text))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("telegram send failed: %s", resp.Status)
	}
	return nil
}
