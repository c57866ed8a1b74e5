// Package discovery はソースURLからフィードURLを解決する機能を提供する。
// feeds.ymlにホームページやYouTubeチャンネルのURLが書かれた場合に、
// 実際にポーリングすべきRSS/Atom URLへ変換する。
package discovery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/hitoshi/feedscan/internal/security"
)

// maxDiscoveryBodySize はHTML自動検出で読み込むボディサイズ上限。
const maxDiscoveryBodySize = 1 << 20 // 1MiB

// youtubeFeedBase はYouTubeチャンネルのRSSフィードURLの雛形。
const youtubeFeedBase = "https://www.youtube.com/feeds/videos.xml?channel_id="

// feedContentTypes はフィードとして認識するContent-Typeのリスト。
var feedContentTypes = []string{
	"application/rss+xml",
	"application/atom+xml",
}

// xmlContentTypes はXMLとして認識するContent-Type（ボディ解析が必要）。
var xmlContentTypes = []string{
	"text/xml",
	"application/xml",
}

// Resolver はソースURLからフィードURLへの解決を行う。
type Resolver struct {
	guard   security.FetchGuardService
	timeout time.Duration
}

// NewResolver はResolverの新しいインスタンスを生成する。
func NewResolver(guard security.FetchGuardService, timeout time.Duration) *Resolver {
	return &Resolver{guard: guard, timeout: timeout}
}

// Resolve はソースURLをポーリング可能なフィードURLへ解決する。
// YouTubeチャンネルURLはパターン変換で解決し、それ以外はURLを取得して
// フィード本体ならそのまま、HTMLページなら<link rel="alternate">から検出する。
func (r *Resolver) Resolve(ctx context.Context, sourceURL string) (string, error) {
	if feedURL, ok := ResolveYouTubeURL(sourceURL); ok {
		return feedURL, nil
	}

	if err := r.guard.ValidateURL(sourceURL); err != nil {
		return "", fmt.Errorf("URL検証に失敗しました: %w", err)
	}

	client := r.guard.NewSafeClient(r.timeout)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", fmt.Errorf("リクエスト作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", "Feedscan/1.0 Feed Ingestion")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("URLの取得に失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("URLの取得に失敗しました: status=%d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDiscoveryBodySize))
	if err != nil {
		return "", fmt.Errorf("レスポンスの読み取りに失敗しました: %w", err)
	}

	if IsDirectFeed(resp.Header.Get("Content-Type"), body) {
		return sourceURL, nil
	}

	feedURL, ok := DiscoverFromHTML(body, sourceURL)
	if !ok {
		return "", fmt.Errorf("フィードを検出できませんでした: %s", sourceURL)
	}
	return feedURL, nil
}

// ResolveYouTubeURL はYouTubeチャンネルURLをRSSフィードURLへ変換する。
// 既にフィードURLの場合はそのまま返す。チャンネルID形式
// （/channel/UC...）のみパターン変換でき、それ以外はfalseを返す。
func ResolveYouTubeURL(sourceURL string) (string, bool) {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return "", false
	}

	host := strings.ToLower(u.Hostname())
	if host != "www.youtube.com" && host != "youtube.com" && host != "m.youtube.com" {
		return "", false
	}

	if u.Path == "/feeds/videos.xml" {
		return sourceURL, true
	}

	if rest, ok := strings.CutPrefix(u.Path, "/channel/"); ok {
		channelID := strings.SplitN(rest, "/", 2)[0]
		if strings.HasPrefix(channelID, "UC") {
			return youtubeFeedBase + channelID, true
		}
	}

	return "", false
}

// IsDirectFeed はContent-Typeとボディを解析して、
// レスポンスがRSS/Atomフィード本体かどうかを判定する。
func IsDirectFeed(contentType string, body []byte) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.Split(contentType, ";")[0])
	}
	mediaType = strings.ToLower(mediaType)

	for _, feedCT := range feedContentTypes {
		if mediaType == feedCT {
			return true
		}
	}

	isXML := false
	for _, xmlCT := range xmlContentTypes {
		if mediaType == xmlCT {
			isXML = true
			break
		}
	}
	if !isXML || len(body) == 0 {
		return false
	}

	return isFeedXML(body)
}

// isFeedXML はXMLボディの先頭部分を解析してRSS/Atomフィードかを判定する。
func isFeedXML(body []byte) bool {
	// 先頭4KBを検査（XMLプロローグ + ルート要素が含まれるのに十分）
	checkSize := 4096
	if len(body) < checkSize {
		checkSize = len(body)
	}
	prefix := strings.ToLower(string(body[:checkSize]))

	if strings.Contains(prefix, "<rss") {
		return true
	}
	if strings.Contains(prefix, "<rdf:rdf") {
		return true
	}
	if strings.Contains(prefix, "<feed") && strings.Contains(prefix, "http://www.w3.org/2005/atom") {
		return true
	}
	return false
}

// DiscoverFromHTML はHTML文書から<link rel="alternate">によるフィードURLを検出する。
// 相対URLはbaseURLを基準に解決する。最初に見つかった候補を返す。
func DiscoverFromHTML(body []byte, baseURL string) (string, bool) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", false
	}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return "", false
	}

	var found string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "link" {
			var rel, typ, href string
			for _, attr := range n.Attr {
				switch strings.ToLower(attr.Key) {
				case "rel":
					rel = strings.ToLower(attr.Val)
				case "type":
					typ = strings.ToLower(attr.Val)
				case "href":
					href = attr.Val
				}
			}
			if rel == "alternate" && href != "" && isFeedLinkType(typ) {
				if resolved, err := base.Parse(href); err == nil {
					found = resolved.String()
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if found == "" {
		return "", false
	}
	return found, true
}

// isFeedLinkType はlink要素のtype属性がフィードを示すかを判定する。
func isFeedLinkType(typ string) bool {
	for _, feedCT := range feedContentTypes {
		if typ == feedCT {
			return true
		}
	}
	return false
}
