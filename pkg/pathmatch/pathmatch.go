// Package pathmatch はAnt形式のパスパターン集合による照合を提供する。
//
// "?" は1文字、"*" はセグメント内の任意の文字列、"**" は0個以上のセグメントに一致する。
// ワイルドカードを含まないパターンは完全一致で照合する。
package pathmatch

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Set は順序付きのパスパターン集合。生成後は変更しない。
type Set struct {
	patterns []string
}

// Compile はパターンを検証してSetを生成する。空文字列のパターンは無視する。
func Compile(patterns []string) (*Set, error) {
	s := &Set{patterns: make([]string, 0, len(patterns))}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("不正なパスパターン: %q", p)
		}
		s.patterns = append(s.patterns, p)
	}
	return s, nil
}

// MustCompile はCompileと同じだが、失敗時にパニックする。テストと固定値の初期化用。
func MustCompile(patterns ...string) *Set {
	s, err := Compile(patterns)
	if err != nil {
		panic(err)
	}
	return s
}

// Match はパスがいずれかのパターンに一致するかを返す。
// nilのSetは何にも一致しない。
func (s *Set) Match(path string) bool {
	if s == nil {
		return false
	}
	for _, p := range s.patterns {
		if matchOne(p, path) {
			return true
		}
	}
	return false
}

// Len はパターン数を返す。
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.patterns)
}

// Patterns はパターンのコピーを返す。
func (s *Set) Patterns() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.patterns...)
}

// matchOne は1つのパターンとパスを照合する。
func matchOne(pattern, path string) bool {
	if !strings.ContainsAny(pattern, "*?[{") {
		return pattern == path
	}
	// "/a/**" は "/a" 自身にも一致させる
	if base, ok := strings.CutSuffix(pattern, "/**"); ok && base == path {
		return true
	}
	ok, err := doublestar.Match(pattern, path)
	return err == nil && ok
}
