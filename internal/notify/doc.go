// Package notify delivers device state change alerts to external channels.
//
// Each channel implements Notifier. A Dispatcher sends one Message to every
// configured channel independently: a failing channel is logged and never
// retried within the cycle, and never prevents delivery to the others.
//
// Channels:
//   - email: SMTP with STARTTLS when the server offers it
//   - telegram: Bot API sendMessage to each configured chat
//   - mqtt: JSON alert on iotmon/alert/{address}; the MQTT notifier also
//     keeps the retained iotmon/state/{address} topic current
//
// Messages are only built from committed transitions whose Notification is
// down or recovered.
package notify
