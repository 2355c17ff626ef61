// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package ssh

import "context"

// doAsync runs body in a goroutine and waits for it or for ctx.
//
// body is called even if ctx is already done. If body fails or ctx is done
// before body returns, clean (if non-nil) runs in body's goroutine once body
// returns, to undo its effect.
//
// doAsync returns body's result if body finishes first, ctx.Err() otherwise.
func doAsync(ctx context.Context, body func() error, clean func()) (retErr error) {
	bodyCh := make(chan error, 1)
	retCh := make(chan error, 1)
	doneCh := make(chan struct{})

	go func() {
		defer close(doneCh)
		bodyCh <- body()
		if err := <-retCh; err != nil && clean != nil {
			clean()
		}
	}()

	defer func() {
		retCh <- retErr
		select {
		case <-doneCh:
		case <-ctx.Done():
		}
	}()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	select {
	case err := <-bodyCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
