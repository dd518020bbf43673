// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package transfer

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// maxBurstSize caps the rate limiter's burst so a single FILE_DATA
// chunk can't reserve an enormous number of tokens at once.
const maxBurstSize = 16 * 1024 * 1024

// ThrottledWriter is an io.Writer with token-bucket rate limiting.
// Write calls larger than the burst size are split across multiple
// WaitN calls so a big chunk doesn't starve the limiter.
type ThrottledWriter struct {
	w       io.Writer
	limiter *rate.Limiter
	ctx     context.Context
}

// NewThrottledWriter wraps w with a limiter capped at bytesPerSec. A
// non-positive bytesPerSec disables throttling entirely and returns w
// unwrapped.
func NewThrottledWriter(ctx context.Context, w io.Writer, bytesPerSec int64) io.Writer {
	if bytesPerSec <= 0 {
		return w
	}

	burst := int(bytesPerSec)
	if burst > maxBurstSize {
		burst = maxBurstSize
	}

	return &ThrottledWriter{
		w:       w,
		limiter: rate.NewLimiter(rate.Limit(bytesPerSec), burst),
		ctx:     ctx,
	}
}

func (tw *ThrottledWriter) Write(p []byte) (int, error) {
	totalWritten := 0

	for len(p) > 0 {
		chunk := len(p)
		if chunk > tw.limiter.Burst() {
			chunk = tw.limiter.Burst()
		}

		if err := tw.limiter.WaitN(tw.ctx, chunk); err != nil {
			return totalWritten, err
		}

		n, err := tw.w.Write(p[:chunk])
		totalWritten += n
		if err != nil {
			return totalWritten, err
		}

		p = p[n:]
	}

	return totalWritten, nil
}
