package account

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/multierr"
)

// Account 是一个可签名的资金账户，进程启动时创建，之后不再变化。
type Account struct {
	index   int
	address common.Address
	key     *ecdsa.PrivateKey
}

// FromPrivateKeyHex 通过十六进制私钥创建账户，允许带 0x 前缀。
func FromPrivateKeyHex(index int, hexKey string) (*Account, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, errors.New("account: 私钥为空")
	}

	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		// 不回显私钥内容
		return nil, fmt.Errorf("account: 解析第 %d 个私钥失败", index)
	}

	pub, ok := key.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("account: 第 %d 个私钥无法转换为 ECDSA 公钥", index)
	}

	return &Account{
		index:   index,
		address: crypto.PubkeyToAddress(*pub),
		key:     key,
	}, nil
}

// LoadAll 按顺序加载全部账户，任一私钥非法即整体失败。
func LoadAll(hexKeys []string) ([]*Account, error) {
	if len(hexKeys) == 0 {
		return nil, errors.New("account: 未配置任何私钥")
	}

	accounts := make([]*Account, 0, len(hexKeys))
	seen := make(map[common.Address]int, len(hexKeys))

	var err error
	for i, raw := range hexKeys {
		acct, loadErr := FromPrivateKeyHex(i, raw)
		if loadErr != nil {
			err = multierr.Append(err, loadErr)
			continue
		}
		if prev, dup := seen[acct.address]; dup {
			err = multierr.Append(err, fmt.Errorf("account: 第 %d 个私钥与第 %d 个重复 (%s)", i, prev, acct.address.Hex()))
			continue
		}
		seen[acct.address] = i
		accounts = append(accounts, acct)
	}

	if err != nil {
		return nil, err
	}
	return accounts, nil
}

// Index 返回账户在配置列表中的位置。
func (a *Account) Index() int {
	return a.index
}

// Address 返回账户地址。
func (a *Account) Address() common.Address {
	return a.address
}

// PrivateKey 返回签名私钥，仅供链网关签名使用。
func (a *Account) PrivateKey() *ecdsa.PrivateKey {
	return a.key
}

func (a *Account) String() string {
	return a.address.Hex()
}
