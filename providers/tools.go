package providers

import (
	"encoding/json"

	"github.com/gofiber/fiber/v3"

	"github.com/orchestra-mcp/chatsocket/src/envelope"
	"github.com/orchestra-mcp/chatsocket/src/types"
)

func (p *RelayServer) handleListClients(c fiber.Ctx) error {
	clients := p.service.GetConnectedClients()
	infos := make([]*types.ClientInfo, 0, len(clients))
	for _, id := range clients {
		info, err := p.service.GetClientInfo(id)
		if err == nil {
			infos = append(infos, info)
		}
	}
	return c.JSON(fiber.Map{
		"clients": infos,
		"count":   len(infos),
	})
}

func (p *RelayServer) handleListChannels(c fiber.Ctx) error {
	channels := p.service.GetChannels()
	return c.JSON(fiber.Map{"channels": channels, "count": len(channels)})
}

// handleChannelUpdate publishes a channel_update frame built from the JSON
// body to every member of the channel.
func (p *RelayServer) handleChannelUpdate(c fiber.Ctx) error {
	channel := c.Params("id")
	var update envelope.ChannelUpdate
	if body := c.Body(); len(body) > 0 {
		if err := json.Unmarshal(body, &update); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_body", "message": err.Error()})
		}
	}
	update.ChannelID = channel
	if err := p.service.Publish(channel, update); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "publish_failed", "message": err.Error()})
	}
	return c.JSON(fiber.Map{"published": true, "channel": channel})
}

// handleDropClient closes a client's socket without a close frame, which the
// client sees as an abnormal closure.
func (p *RelayServer) handleDropClient(c fiber.Ctx) error {
	id := c.Params("id")
	if err := p.service.DisconnectClient(id); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": err.Error()})
	}
	return c.JSON(fiber.Map{"disconnected": true, "client": id})
}
