// Package cooldown runs the resend cooldowns of the auth flows. Each mounted view
// owns a countdown.Controller; the App resumes it from the persisted value, mirrors
// every tick back into the store and clears the value once the countdown finishes
// or the email is verified.
package cooldown
