package fieldbus

import "time"

// retryWithBackoff calls attempt up to cfg.MaxAttempts times, sleeping
// cfg.BaseDelay*2^(n-1) between attempts, and returns the last error if
// every attempt fails. Grounded on the original modbus_client.py's
// _read_with_retry formula (base_delay * 2**attempt).
func retryWithBackoff(cfg RetryConfig, attempt func() error) error {
	var lastErr error

	for n := 0; n < cfg.MaxAttempts; n++ {
		if n > 0 {
			time.Sleep(cfg.BaseDelay * time.Duration(uint64(1)<<uint(n-1)))
		}
		if err := attempt(); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}

	return lastErr
}
