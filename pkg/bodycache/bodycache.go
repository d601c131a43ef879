// Package bodycache はリクエストボディを一度だけ読み取り、複数の処理から再読込できるようにする。
//
// HTTPのボディは一度しか読めないストリームであるため、
// フィルターチェーンの複数の段がボディを参照するにはバッファリングが必要になる。
package bodycache

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
)

// ErrTooLarge はボディが上限サイズを超えたことを表す。
var ErrTooLarge = errors.New("リクエストボディが大きすぎます")

// Mutating はメソッドがボディを伴う更新系リクエストかを返す。
// GET、HEAD、DELETE、OPTIONS、TRACEはボディを扱わない。
func Mutating(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodDelete, http.MethodOptions, http.MethodTrace:
		return false
	}
	return true
}

// Cache は1リクエスト分のボディのバッファ。
// リクエストの処理が終わったらReleaseで解放する。
type Cache struct {
	// maxBytes はバッファする最大バイト数。0以下なら無制限。
	maxBytes int64

	once   sync.Once
	data   []byte
	err    error
	cached bool
}

// New は新しいCacheを生成する。
func New(maxBytes int64) *Cache {
	return &Cache{maxBytes: maxBytes}
}

// Bytes はリクエストのボディをバッファし、その内容を返す。
// 2回目以降の呼び出しでは元のストリームを読まず、同じ内容を返す。
// 更新系でないメソッドではボディに触れずnilを返す。
// バッファ後のr.Bodyはバッファから読み出す再生可能なボディに差し替えられる。
func (c *Cache) Bytes(r *http.Request) ([]byte, error) {
	if !Mutating(r.Method) {
		return nil, nil
	}

	c.once.Do(func() {
		c.data, c.err = c.read(r)
		if c.err != nil {
			return
		}
		c.cached = true
		Replace(r, c.data)
	})
	return c.data, c.err
}

// Set はバッファの内容をdataに置き換え、リクエストのボディも同じ内容に差し替える。
// 以後のBytesは元のストリームを読まずにdataを返す。
func (c *Cache) Set(r *http.Request, data []byte) {
	c.once.Do(func() {})
	c.data, c.err, c.cached = data, nil, true
	Replace(r, data)
}

// Cached はボディがバッファ済みかを返す。
func (c *Cache) Cached() bool {
	return c.cached
}

// Release はバッファを解放する。
func (c *Cache) Release() {
	c.data = nil
}

// read は元のストリームを最後まで読み取る。
func (c *Cache) read(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return []byte{}, nil
	}
	defer r.Body.Close()

	var src io.Reader = r.Body
	if c.maxBytes > 0 {
		src = io.LimitReader(r.Body, c.maxBytes+1)
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("リクエストボディの読み取りに失敗: %w", err)
	}
	if c.maxBytes > 0 && int64(len(data)) > c.maxBytes {
		return nil, ErrTooLarge
	}
	return data, nil
}

// Replace はリクエストのボディをdataに差し替え、Content-Lengthを実際のバイト数に合わせる。
// Transfer-Encodingは削除する。
func Replace(r *http.Request, data []byte) {
	r.Body = io.NopCloser(bytes.NewReader(data))
	r.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	r.ContentLength = int64(len(data))
	r.TransferEncoding = nil
	r.Header.Del("Transfer-Encoding")
	r.Header.Set("Content-Length", strconv.Itoa(len(data)))
}
