package exchange

import "errors"

// ErrMaintenance 表示交易所处于维护窗口，此类错误不重试。
var ErrMaintenance = errors.New("exchange on maintenance")

// IsMaintenance 判断错误链中是否包含交易所维护状态。
func IsMaintenance(err error) bool {
	return errors.Is(err, ErrMaintenance)
}
