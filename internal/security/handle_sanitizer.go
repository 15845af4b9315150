// Package security はアプリケーションのセキュリティ機能を提供する。
//
// HandleSanitizer は連携時に利用者が入力したアカウントハンドルからマークアップを除去し、
// プレーンテキストとして保存できる形にそろえる。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// HandleSanitizer はハンドル文字列のサニタイズ機能を提供する。
// bluemondayのStrictPolicyを保持し、スレッドセーフに処理を行う。
type HandleSanitizer struct {
	policy *bluemonday.Policy
}

// NewHandleSanitizer は新しいHandleSanitizerを生成する。
func NewHandleSanitizer() *HandleSanitizer {
	return &HandleSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はすべてのタグを除去し、前後の空白を取り除いたプレーンテキストを返す。
// 出力はHTMLエスケープされない。表示側でエスケープすること。
// 同一入力に対して常に同一出力を返す（冪等）。
func (s *HandleSanitizer) Sanitize(raw string) string {
	stripped := s.policy.Sanitize(raw)
	return strings.TrimSpace(html.UnescapeString(stripped))
}
