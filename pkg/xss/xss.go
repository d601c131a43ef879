// Package xss はJSONリクエストボディに含まれるスクリプト注入を無害化する。
//
// JSONの構造（キー、区切り文字、数値、空白）はそのまま保ち、
// 文字列値の中のHTMLタグのみを除去・エスケープする。
package xss

import (
	"bytes"
	"encoding/json"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer はJSONテキストを無害化する。
// 生成後は不変で、複数のゴルーチンから同時に使用できる。
type Sanitizer struct {
	// policy は文字列値に適用するHTMLポリシー。
	policy *bluemonday.Policy
}

// New は全てのHTML要素を除去する厳格なポリシーでSanitizerを生成する。
func New() *Sanitizer {
	return &Sanitizer{policy: bluemonday.StrictPolicy()}
}

// Clean は文字列からHTML要素を除去し、残った特殊文字をエスケープする。
func (s *Sanitizer) Clean(v string) string {
	return s.policy.Sanitize(v)
}

// SanitizeJSON はJSONテキストの文字列リテラルのみを無害化したバイト列を返す。
// 変更が無い場合は入力と同じ内容を返す。
// 不正なJSONの場合はテキスト全体をHTMLとして無害化する。
func (s *Sanitizer) SanitizeJSON(data []byte) []byte {
	if !json.Valid(data) {
		return []byte(s.Clean(string(data)))
	}

	var out bytes.Buffer
	out.Grow(len(data))
	for i := 0; i < len(data); {
		if data[i] != '"' {
			out.WriteByte(data[i])
			i++
			continue
		}
		end := stringEnd(data, i)
		lit := data[i:end]
		out.Write(s.rewriteLiteral(lit, isKey(data, end)))
		i = end
	}
	return out.Bytes()
}

// rewriteLiteral は1つの文字列リテラルを無害化する。キーは変更しない。
func (s *Sanitizer) rewriteLiteral(lit []byte, key bool) []byte {
	if key {
		return lit
	}
	var v string
	if err := json.Unmarshal(lit, &v); err != nil {
		return lit
	}
	cleaned := s.Clean(v)
	if cleaned == v {
		return lit
	}
	return encodeString(cleaned)
}

// stringEnd はstartの位置の '"' から始まる文字列リテラルの終端の次の位置を返す。
// 入力は妥当なJSONであることを前提とする。
func stringEnd(data []byte, start int) int {
	for i := start + 1; i < len(data); i++ {
		switch data[i] {
		case '\\':
			i++
		case '"':
			return i + 1
		}
	}
	return len(data)
}

// isKey はposから空白を読み飛ばした次の文字が ':' であるか、すなわち直前のリテラルがキーかを返す。
func isKey(data []byte, pos int) bool {
	for ; pos < len(data); pos++ {
		switch data[pos] {
		case ' ', '\t', '\r', '\n':
			continue
		case ':':
			return true
		default:
			return false
		}
	}
	return false
}

// encodeString は文字列をHTMLエスケープ無しでJSON文字列リテラルに変換する。
func encodeString(v string) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// 文字列のエンコードは失敗しない
	_ = enc.Encode(v)
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
}
