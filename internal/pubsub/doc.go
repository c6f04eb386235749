// Package pubsub implements channel and pattern based message fan-out.
//
// Subscribers register exact channel names or glob patterns and receive
// published messages through an unbounded per-subscriber queue. Delivery
// is fire-and-forget: publishing never blocks on a slow or departed
// subscriber, and a message published with nobody listening is simply
// dropped. A subscriber holding both a channel and a pattern that match
// the same publish receives the message once per match.
package pubsub
