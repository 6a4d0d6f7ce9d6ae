// Package watchdog implements a periodic health-check engine.
//
// A Watchdog sleeps for a check interval, runs a Checker and reports the
// outcome (ok, failed or impossible) to every registered Listener. Listeners
// are delivered to either on the scheduler goroutine (DispatchSync) or from a
// single worker fed by a bounded queue (DispatchAsync). A listener that
// returns an error or panics is logged and, by default, removed; the other
// listeners and the scheduler are unaffected.
//
// EscalationListener wraps a Listener so that transient impossibility does not
// alarm anyone: only MaxRetries consecutive impossible outcomes are turned
// into a single failure carrying an *EscalationError.
//
//	checker := watchdog.CheckFunc(func(ctx context.Context, _ any) error {
//	    if err := db.PingContext(ctx); err != nil {
//	        return watchdog.NewImpossibleError("database unreachable", err)
//	    }
//	    return nil
//	})
//
//	w, err := watchdog.New("database", checker,
//	    watchdog.WithCheckInterval(30*time.Second),
//	    watchdog.WithLogger(logger),
//	)
//	if err != nil {
//	    return err
//	}
//
//	pager, _ := watchdog.NewEscalationListener(&pagerListener{}, watchdog.WithMaxRetries(3))
//	_ = w.AddListener(pager)
//
//	if err := w.Start(ctx); err != nil {
//	    return err
//	}
//	defer w.Stop()
package watchdog
