package events

import (
	"strings"
	"unicode"
)

// TopicMapper traduce la routing key de un mensaje ("Order.OrderConfirmed")
// al topic de Kafka ("hexadelivery-order-confirmed").
type TopicMapper struct {
	Prefix string
}

func NewTopicMapper(prefix string) TopicMapper {
	return TopicMapper{Prefix: strings.Trim(prefix, "-")}
}

// Topic usa sólo el tipo de evento: los nombres de evento ya incluyen el agregado.
func (m TopicMapper) Topic(routingKey string) string {
	eventType := routingKey
	if i := strings.LastIndex(routingKey, "."); i >= 0 {
		eventType = routingKey[i+1:]
	}
	topic := kebab(eventType)
	if m.Prefix == "" {
		return topic
	}
	return m.Prefix + "-" + topic
}

func kebab(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])) {
				b.WriteByte('-')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
