package dex

import "errors"

var (
	// ErrQuoteUnavailable 表示询价调用失败（无流动性或网络异常），本次交易应放弃。
	ErrQuoteUnavailable = errors.New("quote unavailable")
	// ErrAuthorizationFailed 表示授权额度读取或 approve 交易失败，卖出不得继续。
	ErrAuthorizationFailed = errors.New("authorization failed")
)
