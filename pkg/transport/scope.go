package transport

import (
	"context"

	"go.uber.org/multierr"
)

// WithConn 打开实例、执行 fn，并在所有退出路径上关闭实例
//
// fn 的错误与 Close 的错误合并返回；fn panic 时同样会关闭实例后再继续 panic。
func WithConn(ctx context.Context, open func(context.Context) (Conn, error), fn func(Conn) error) (err error) {
	c, err := open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, c.Close())
	}()
	return fn(c)
}

// Dialer 返回供 WithConn 使用的 Connect 闭包
func Dialer(kind Kind, addr string, opts ...Option) func(context.Context) (Conn, error) {
	return func(ctx context.Context) (Conn, error) {
		return Connect(ctx, kind, addr, opts...)
	}
}

// Listener 返回供 WithConn 使用的 Listen 闭包
func Listener(kind Kind, addr string, opts ...Option) func(context.Context) (Conn, error) {
	return func(ctx context.Context) (Conn, error) {
		return Listen(ctx, kind, addr, opts...)
	}
}
