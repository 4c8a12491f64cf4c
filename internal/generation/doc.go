// Package generation defines the ports through which pipeline tasks reach
// external generative services (text, voice and images) and the swappable
// set of live clients behind them. Adapters live under internal/platform.
package generation
