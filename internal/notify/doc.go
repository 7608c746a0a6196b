// Package notify fans one logical reminder out across the two delivery
// channels: a best-effort realtime event on the user's topic and a push
// batch to the user's enabled device tokens.
//
// Delivery is best-effort by design. The fan-out never surfaces a
// record-level delivery failure as an error; the reminder job's dedup
// window, not a durable receipt, bounds re-attempts.
package notify
