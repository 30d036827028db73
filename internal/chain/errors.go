package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
)

var (
	// ErrUnavailable 表示节点不可达或传输层失败，请求未得到 JSON-RPC 应答。
	ErrUnavailable = errors.New("chain gateway unavailable")
	// ErrReverted 表示合约执行回滚。
	ErrReverted = errors.New("execution reverted")
	// ErrRejected 表示节点拒绝了请求，例如余额不足以支付 value 与 gas。
	ErrRejected = errors.New("rejected by node")
)

// revertCode 为 geth 在 eth_call / eth_estimateGas 回滚时返回的错误码。
const revertCode = 3

// classifyError 将底层错误归类到上述哨兵错误，并保留原始错误链。
func classifyError(operation string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", operation, err)
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		if rpcErr.ErrorCode() == revertCode || isRevertMessage(rpcErr.Error()) {
			return fmt.Errorf("%s: %w: %w", operation, ErrReverted, err)
		}
		return fmt.Errorf("%s: %w: %w", operation, ErrRejected, err)
	}

	if isRevertMessage(err.Error()) {
		return fmt.Errorf("%s: %w: %w", operation, ErrReverted, err)
	}

	return fmt.Errorf("%s: %w: %w", operation, ErrUnavailable, err)
}

func isRevertMessage(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "execution reverted")
}

// IsUnavailable 判断错误是否源于节点不可达。
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
