package notifications

import "github.com/hbomb79/Shiori/pkg/logger"

// LogMessenger is the default Messenger: it writes each message to the
// application log. Real transports (chat bots, email) implement the
// Messenger interface and replace this at composition time.
type LogMessenger struct {
	log logger.Logger
}

func NewLogMessenger() *LogMessenger {
	return &LogMessenger{log: logger.Get("Dispatch")}
}

func (messenger *LogMessenger) Send(recipient string, message Message) error {
	messenger.log.Emit(logger.INFO, "To %s [%s]:\n%s\n", recipient, message.Subject, message.Body)
	return nil
}
