package signup

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// sendWelcome fires the welcome email in the background. The signup never
// waits for it and never sees its error; failures end up in the log and on
// the span. Shutdown drains outstanding sends.
func (s *Service) sendWelcome(ctx context.Context, uid, email, name string) {
	s.welcome.Add(1)
	go func() {
		defer s.welcome.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.welcomeTimeout)
		defer cancel()

		ctx, span := s.tracer.Start(ctx, "signup.welcome_email",
			trace.WithAttributes(attribute.String("signup.uid", uid)))
		defer span.End()

		if err := s.mail.SendWelcome(ctx, email, name); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "welcome email failed")
			s.logger.WithError(err).WithField("uid", uid).Warn("Welcome email failed")
			return
		}

		s.logger.WithField("uid", uid).Debug("Welcome email sent")
	}()
}
