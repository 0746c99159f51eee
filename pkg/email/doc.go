// Package email delivers the email channel.
//
// EmailSender is the provider abstraction with two implementations:
// NewPostmarkClient for production and DevSender, which writes each email to
// disk as an HTML file plus JSON metadata. ChannelSender adapts either one to
// the dispatch worker: it looks up the recipient's address, sends the HTML
// envelope rendered by the planner, and marks address problems as permanent
// so they are not retried.
//
// # Usage
//
//	var mailer email.EmailSender = email.NewDevSender(cfg.DevDir)
//	if cfg.UsePostmark() {
//		mailer, err = email.NewPostmarkClient(cfg)
//		if err != nil {
//			return err
//		}
//	}
//
//	worker, err := dispatch.NewWorker(queue,
//		dispatch.WithSender(messaging.ChannelEmail, email.NewChannelSender(mailer, directory)),
//	)
//
// # Error Handling
//
// Validation failures wrap ErrInvalidParams, configuration problems wrap
// ErrInvalidConfig, and provider failures wrap ErrFailedToSendEmail. Provider
// error codes are exposed as *ProviderError.
package email
