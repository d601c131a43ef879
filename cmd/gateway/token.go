package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nao1215/edugate/pkg/redisclient"
	"github.com/nao1215/edugate/pkg/session"
	"github.com/nao1215/edugate/pkg/token"
)

// tokenOptions はtokenコマンドのオプション。
type tokenOptions struct {
	secret    string
	userID    string
	username  string
	userKey   string
	ttl       time.Duration
	redisAddr string
}

// newTokenCmd は開発用のトークンを発行するtokenコマンドを生成する。
// 本番環境では認証サービスがトークンを発行する。
func newTokenCmd() *cobra.Command {
	opts := &tokenOptions{}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "開発用のトークンを発行する",
		Long: `開発用のトークンを発行して標準出力に書き出す。
--redis-addrを指定した場合はセッションも登録し、ゲートウェイの認証を通過できるようにする。`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.secret == "" {
				opts.secret = os.Getenv("JWT_SECRET")
			}
			s, err := issueToken(cmd.Context(), opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), s)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.secret, "secret", "", "署名鍵（省略時は環境変数JWT_SECRET）")
	cmd.Flags().StringVar(&opts.userID, "user-id", "1", "ユーザーID")
	cmd.Flags().StringVar(&opts.username, "username", "admin", "ユーザー名")
	cmd.Flags().StringVar(&opts.userKey, "user-key", "", "セッションキー（省略時はUUIDを生成）")
	cmd.Flags().DurationVar(&opts.ttl, "ttl", 720*time.Minute, "トークンとセッションの有効期間")
	cmd.Flags().StringVar(&opts.redisAddr, "redis-addr", "", "セッションを登録するRedisのアドレス")
	return cmd
}

// issueToken はトークンを発行し、必要であればセッションを登録する。
func issueToken(ctx context.Context, opts *tokenOptions) (string, error) {
	codec, err := token.NewCodec(opts.secret)
	if err != nil {
		return "", err
	}
	if opts.userKey == "" {
		opts.userKey = uuid.New().String()
	}

	s, err := codec.Encode(token.Claims{
		UserKey:  opts.userKey,
		UserID:   token.ID(opts.userID),
		Username: opts.username,
	}, opts.ttl)
	if err != nil {
		return "", err
	}

	if opts.redisAddr != "" {
		client := redisclient.New(redisclient.Config{Addr: opts.redisAddr})
		defer client.Close()
		if err := client.Set(ctx, session.Key(opts.userKey), opts.userID, opts.ttl).Err(); err != nil {
			return "", fmt.Errorf("セッションの登録に失敗: %w", err)
		}
	}
	return s, nil
}
