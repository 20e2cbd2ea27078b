package ports

import "context"

// SentimentProvider puntúa el sentimiento de texto reciente sobre un
// activo. Los scores vienen normalizados a [-1, 1]. Un error se trata
// siempre como score neutro por el agregador de señales.
type SentimentProvider interface {
	// WebSentiment puntúa titulares de noticias recientes.
	WebSentiment(ctx context.Context, asset string) (float64, error)

	// SocialSentiment puntúa posts recientes en redes.
	SocialSentiment(ctx context.Context, asset string) (float64, error)
}
