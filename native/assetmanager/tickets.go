package assetmanager

import (
	"fassetbridge/native/redemptionqueue"
)

// DustChange reports the new dust of an agent after an operation.
type DustChange struct {
	AgentID uint64
	DustUBA uint64
}

// agentRedemption is the value taken from one agent's tickets by a redeem.
type agentRedemption struct {
	agent    *Agent
	valueAMG uint64
}

func (tx *txn) changeDust(agent *Agent, dustAMG uint64) {
	if agent.DustAMG == dustAMG {
		return
	}
	agent.DustAMG = dustAMG
	dustUBA := tx.settings().amgToUBA(dustAMG)
	tx.dustChanges = append(tx.dustChanges, DustChange{AgentID: agent.ID, DustUBA: dustUBA})
	tx.emit(newDustChangedEvent(agent.ID, dustUBA))
}

func (tx *txn) emitTicket(eventType string, ticket *redemptionqueue.Ticket, valueAMG uint64) {
	tx.emit(newTicketEvent(eventType, ticket.AgentID, ticket.ID, tx.settings().amgToUBA(valueAMG)))
}

// createNewMinting ticketizes newly minted value. The whole lots of dust
// plus value go to the queue and the remainder stays as dust.
func (tx *txn) createNewMinting(agent *Agent, valueAMG uint64) error {
	lot := tx.lotSize()
	withDust := agent.DustAMG + valueAMG
	newDust := withDust % lot
	ticketValue := withDust - newDust
	if ticketValue > 0 {
		ticket, merged, err := tx.queue().Push(agent.ID, ticketValue)
		if err != nil {
			return err
		}
		if merged {
			tx.emitTicket(EventTypeRedemptionTicketUpdated, ticket, ticket.ValueAMG)
		} else {
			tx.emitTicket(EventTypeRedemptionTicketCreated, ticket, ticket.ValueAMG)
		}
	}
	tx.changeDust(agent, newDust)
	return nil
}

// removeFromTicket takes redeemedAMG out of a ticket and the agent's dust and
// re-quantizes the rest to the current lot size.
func (tx *txn) removeFromTicket(agent *Agent, ticket *redemptionqueue.Ticket, redeemedAMG uint64) error {
	available := ticket.ValueAMG + agent.DustAMG
	remaining, err := subChecked(available, redeemedAMG, "ticket value")
	if err != nil {
		return err
	}
	lot := tx.lotSize()
	newDust := remaining % lot
	newValue := remaining - newDust
	q := tx.queue()
	switch {
	case newValue == 0:
		if err := q.Remove(ticket.ID); err != nil {
			return err
		}
		tx.emitTicket(EventTypeRedemptionTicketDeleted, ticket, 0)
	case newValue != ticket.ValueAMG:
		if err := q.SetValue(ticket.ID, newValue); err != nil {
			return err
		}
		tx.emitTicket(EventTypeRedemptionTicketUpdated, ticket, newValue)
	}
	tx.changeDust(agent, newDust)
	return nil
}

// redeemFromQueue consumes up to lots whole lots from the head of the global
// queue, visiting at most MaxRedeemedTickets tickets. Tickets worth less
// than a lot (after a lot size increase) are folded into their agent's dust.
func (tx *txn) redeemFromQueue(lots uint64) ([]agentRedemption, uint64, error) {
	q := tx.queue()
	lot := tx.lotSize()
	var (
		out      []agentRedemption
		index    = make(map[uint64]int)
		redeemed uint64
	)
	for i := uint64(0); i < tx.settings().MaxRedeemedTickets && redeemed < lots; i++ {
		ticket, ok, err := q.First()
		if err != nil {
			return nil, 0, err
		}
		if !ok {
			break
		}
		agent, err := tx.agent(ticket.AgentID)
		if err != nil {
			return nil, 0, err
		}
		maxLots := (ticket.ValueAMG + agent.DustAMG) / lot
		if maxLots == 0 {
			if err := q.Remove(ticket.ID); err != nil {
				return nil, 0, err
			}
			tx.emitTicket(EventTypeRedemptionTicketDeleted, ticket, 0)
			tx.changeDust(agent, agent.DustAMG+ticket.ValueAMG)
			continue
		}
		take := minU64(lots-redeemed, maxLots)
		if err := tx.removeFromTicket(agent, ticket, take*lot); err != nil {
			return nil, 0, err
		}
		if pos, ok := index[agent.ID]; ok {
			out[pos].valueAMG += take * lot
		} else {
			index[agent.ID] = len(out)
			out = append(out, agentRedemption{agent: agent, valueAMG: take * lot})
		}
		redeemed += take
	}
	return out, redeemed, nil
}

// closeTickets removes up to amountAMG of the agent's backing from its dust
// first and then from its own tickets in creation order. It returns the
// closed amount; minted is not touched.
func (tx *txn) closeTickets(agent *Agent, amountAMG uint64) (uint64, error) {
	closed := minU64(amountAMG, agent.DustAMG)
	if closed > 0 {
		tx.changeDust(agent, agent.DustAMG-closed)
	}
	q := tx.queue()
	for i := uint64(0); i < tx.settings().MaxRedeemedTickets && closed < amountAMG; i++ {
		ticket, ok, err := q.FirstForAgent(agent.ID)
		if err != nil {
			return 0, err
		}
		if !ok {
			break
		}
		take := minU64(amountAMG-closed, ticket.ValueAMG+agent.DustAMG)
		if err := tx.removeFromTicket(agent, ticket, take); err != nil {
			return 0, err
		}
		closed += take
	}
	return closed, nil
}

func (tx *txn) convertDustToTicket(agent *Agent) error {
	lot := tx.lotSize()
	if agent.DustAMG < lot {
		return nil
	}
	ticketValue := roundDownToLot(agent.DustAMG, lot)
	ticket, merged, err := tx.queue().Push(agent.ID, ticketValue)
	if err != nil {
		return err
	}
	if merged {
		tx.emitTicket(EventTypeRedemptionTicketUpdated, ticket, ticket.ValueAMG)
	} else {
		tx.emitTicket(EventTypeRedemptionTicketCreated, ticket, ticket.ValueAMG)
	}
	tx.changeDust(agent, agent.DustAMG-ticketValue)
	return nil
}

// ConvertDustToTicket moves whole lots of an agent's dust back into the
// redemption queue. It is a no-op when the dust is below one lot.
func (e *Engine) ConvertDustToTicket(agentID uint64) error {
	return e.run("convert_dust_to_ticket", opts{queue: true}, func(tx *txn) error {
		agent, err := tx.agent(agentID)
		if err != nil {
			return err
		}
		return tx.convertDustToTicket(agent)
	})
}

// SetLotSize changes the lot size. Existing tickets are left as they are and
// re-quantized when they are next consumed.
func (e *Engine) SetLotSize(lotSizeAMG uint64) error {
	return e.run("set_lot_size", opts{queue: true}, func(tx *txn) error {
		if lotSizeAMG == 0 {
			return ErrInvalidLotSize
		}
		tx.globals.LotSizeAMG = lotSizeAMG
		tx.lotChanged = true
		return nil
	})
}

// TicketInfo is a read model of one redemption ticket.
type TicketInfo struct {
	ID       uint64
	AgentID  uint64
	ValueUBA uint64
}

// RedemptionQueue lists the tickets of the global queue in order.
func (e *Engine) RedemptionQueue() ([]TicketInfo, error) {
	var out []TicketInfo
	e.queueMu.Lock()
	defer e.queueMu.Unlock()
	err := e.view(func(tx *txn) error {
		tickets, err := tx.queue().Tickets()
		if err != nil {
			return err
		}
		out = tx.ticketInfos(tickets)
		return nil
	})
	return out, err
}

// AgentTickets lists an agent's tickets in creation order.
func (e *Engine) AgentTickets(agentID uint64) ([]TicketInfo, error) {
	var out []TicketInfo
	err := e.view(func(tx *txn) error {
		tickets, err := tx.queue().AgentTickets(agentID)
		if err != nil {
			return err
		}
		out = tx.ticketInfos(tickets)
		return nil
	})
	return out, err
}

func (tx *txn) ticketInfos(tickets []*redemptionqueue.Ticket) []TicketInfo {
	out := make([]TicketInfo, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, TicketInfo{ID: t.ID, AgentID: t.AgentID, ValueUBA: tx.settings().amgToUBA(t.ValueAMG)})
	}
	return out
}
