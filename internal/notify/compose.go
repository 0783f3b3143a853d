package notify

import (
	"fmt"
	"strings"

	"github.com/diamonddulceria/storefront/pkg/models"
)

// ForOrder builds the operator alert and the customer confirmation for a new
// or newly paid order.
func ForOrder(order *models.Order, operatorEmail string) []models.Notification {
	var out []models.Notification

	if operatorEmail != "" {
		out = append(out, models.Notification{
			OrderID:   order.ID,
			Kind:      models.NotificationOperatorNewOrder,
			Recipient: operatorEmail,
			Subject:   fmt.Sprintf("New %s order from %s", order.Status, order.CustomerName),
			Body:      operatorBody(order),
		})
	}

	if order.CustomerEmail != "" {
		subject := "Your Diamond Dulceria order is confirmed"
		if order.Status == models.OrderStatusPending {
			subject = "We received your Diamond Dulceria request"
		}
		out = append(out, models.Notification{
			OrderID:   order.ID,
			Kind:      models.NotificationCustomerConfirmation,
			Recipient: order.CustomerEmail,
			Subject:   subject,
			Body:      customerBody(order),
		})
	}

	return out
}

func ForQuote(order *models.Order, quotedPrice int) models.Notification {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", order.CustomerName)
	fmt.Fprintf(&b, "Thank you for your custom order request (%s).\n", shortID(order.ID))
	fmt.Fprintf(&b, "We can make it for %s.\n\n", money(quotedPrice))
	writeItems(&b, order.Items)
	b.WriteString("\nReply to this email to accept the quote or ask us anything.\n")

	return models.Notification{
		OrderID:   order.ID,
		Kind:      models.NotificationCustomerQuote,
		Recipient: order.CustomerEmail,
		Subject:   "Your Diamond Dulceria quote",
		Body:      b.String(),
	}
}

func ForMessage(order *models.Order, subject, message string) models.Notification {
	return models.Notification{
		OrderID:   order.ID,
		Kind:      models.NotificationCustomerMessage,
		Recipient: order.CustomerEmail,
		Subject:   subject,
		Body:      fmt.Sprintf("Hi %s,\n\n%s\n\nOrder reference: %s\n", order.CustomerName, message, shortID(order.ID)),
	}
}

func operatorBody(order *models.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Order %s (%s)\n\n", order.ID, order.Status)
	fmt.Fprintf(&b, "Customer: %s <%s>\n", order.CustomerName, order.CustomerEmail)
	if order.CustomerPhone != "" {
		fmt.Fprintf(&b, "Phone: %s\n", order.CustomerPhone)
	}
	if order.DeliveryAddress != "" {
		fmt.Fprintf(&b, "Delivery: %s\n", order.DeliveryAddress)
	}
	if order.SpecialInstructions != nil && *order.SpecialInstructions != "" {
		fmt.Fprintf(&b, "Instructions: %s\n", *order.SpecialInstructions)
	}
	if order.PaymentIntentID != nil {
		fmt.Fprintf(&b, "Payment: %s\n", *order.PaymentIntentID)
	}
	b.WriteString("\n")
	writeItems(&b, order.Items)
	fmt.Fprintf(&b, "\nTotal: %s\n", money(order.Total))
	return b.String()
}

func customerBody(order *models.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", order.CustomerName)
	if order.Status == models.OrderStatusPending {
		b.WriteString("Thank you for your request. We will get back to you with a quote shortly.\n\n")
	} else {
		b.WriteString("Thank you for your order! Your payment was received.\n\n")
	}
	writeItems(&b, order.Items)
	fmt.Fprintf(&b, "\nTotal: %s\n", money(order.Total))
	fmt.Fprintf(&b, "Order reference: %s\n", shortID(order.ID))
	return b.String()
}

func writeItems(b *strings.Builder, items []models.LineItem) {
	for _, item := range items {
		fmt.Fprintf(b, "  %d x %s  %s\n", item.Quantity, item.Name, money(item.Price*item.Quantity))
		if item.CustomNotes != "" {
			fmt.Fprintf(b, "      notes: %s\n", item.CustomNotes)
		}
	}
}

func money(amount int) string {
	return fmt.Sprintf("$%d.00", amount)
}

func shortID(id string) string {
	if len(id) > 8 {
		return strings.ToUpper(id[:8])
	}
	return strings.ToUpper(id)
}
