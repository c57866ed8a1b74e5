package scanner

import (
	"crypto/sha256"
	"fmt"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hitoshi/feedscan/internal/model"
)

// summaryStripper はコンテンツハッシュ計算前にサマリーからHTMLタグを除去する。
// マークアップだけの編集で再公開シグナルが立つのを防ぐ。
var summaryStripper = bluemonday.StrictPolicy()

// IdentityHash はエントリの安定した同一性ハッシュを導出する。
// フォールバック連鎖: GUID（非空なら最優先）→ 正規化リンクURL →
// title + "|" + enclosure URL。選ばれたキーのSHA-256を16進で返すため、
// 無関係なフィールドの表記ゆれに影響されず、実行をまたいで安定する。
func IdentityHash(e *model.RawEntry) string {
	key := identityKey(e)
	hash := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%x", hash)
}

// identityKey は同一性判定に使うキー文字列を選択する。
func identityKey(e *model.RawEntry) string {
	if guid := strings.TrimSpace(e.GUID); guid != "" {
		return guid
	}
	if link := strings.TrimSpace(e.Link); link != "" {
		return normalizeLink(link)
	}
	return e.Title + "|" + e.EnclosureURL
}

// ContentHash はタイトル・サマリー・enclosure URLのダイジェストを計算する。
// 同一性を変えずに内容が編集された再公開（republish-with-edit）の検出に使う。
// サマリーはHTMLタグを除去してから使用する。
func ContentHash(e *model.RawEntry) string {
	summary := strings.TrimSpace(summaryStripper.Sanitize(e.Summary))
	data := e.Title + "|" + summary + "|" + e.EnclosureURL
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// normalizeLink はリンクURLを正規化する。
// スキームとホストを小文字化し、デフォルトポート・フラグメント・
// 末尾スラッシュを除去する。パースできない場合はトリムした原文を返す。
func normalizeLink(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return strings.TrimSpace(raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	// デフォルトポートの除去
	if (u.Scheme == "http" && strings.HasSuffix(u.Host, ":80")) ||
		(u.Scheme == "https" && strings.HasSuffix(u.Host, ":443")) {
		u.Host = u.Hostname()
	}

	u.Path = strings.TrimSuffix(u.Path, "/")

	return u.String()
}
