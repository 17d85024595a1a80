package main

import (
	"context"

	"go.uber.org/zap"

	"apexfsm/internal/fsmdef"
	"apexfsm/internal/fsmengine"
	"apexfsm/internal/fsmhost"
	"apexfsm/internal/logging"
	"apexfsm/pkg/models"
)

// orderDefinition is the demo FSM bound to Order.Status, exercising the
// literal scenarios of §8: pending -> paid (guarded) -> shipped, plus a
// cancellation branch from either pre-shipment state and a refund from paid.
func orderDefinition() fsmdef.FsmRuntimeDefinition {
	initial := models.OrderStatusPending
	return fsmdef.FsmRuntimeDefinition{
		ModelClass:   "Order",
		ColumnName:   "status",
		InitialState: &initial,
		States: map[string]fsmdef.StateDefinition{
			models.OrderStatusPending:   {Name: models.OrderStatusPending, Type: fsmdef.StateTypeInitial},
			models.OrderStatusPaid:      {Name: models.OrderStatusPaid, Type: fsmdef.StateTypeIntermediate},
			models.OrderStatusShipped:   {Name: models.OrderStatusShipped, Type: fsmdef.StateTypeFinal, IsTerminal: true},
			models.OrderStatusCancelled: {Name: models.OrderStatusCancelled, Type: fsmdef.StateTypeFinal, IsTerminal: true},
			models.OrderStatusRefunded:  {Name: models.OrderStatusRefunded, Type: fsmdef.StateTypeFinal, IsTerminal: true},
		},
		Transitions: []fsmdef.TransitionDefinition{
			{
				FromState: strPtr(models.OrderStatusPending), ToState: models.OrderStatusPaid, Event: "pay",
				Guards: []fsmdef.TransitionGuard{
					{CallableRef: fsmdef.CallableRef{Name: "order.hasPositiveTotal"}},
				},
				Actions: []fsmdef.TransitionAction{
					{CallableRef: fsmdef.CallableRef{Name: "order.sendReceipt"}, RunAfterTransition: true, Queued: true},
				},
			},
			{FromState: strPtr(models.OrderStatusPaid), ToState: models.OrderStatusShipped, Event: "ship"},
			{FromState: strPtr(models.OrderStatusPending), ToState: models.OrderStatusCancelled, Event: "cancel"},
			{FromState: strPtr(models.OrderStatusPaid), ToState: models.OrderStatusCancelled, Event: "cancel"},
			{FromState: strPtr(models.OrderStatusPaid), ToState: models.OrderStatusRefunded, Event: "refund"},
		},
	}
}

func strPtr(s string) *string { return &s }

// registerDemoCallables wires the named guards/actions the order definition
// above references. The guard is resolved through the container at dispatch
// time; order.sendReceipt is declared Queued, so Perform enqueues it by name
// and does not invoke this registration.
func registerDemoCallables(container *fsmengine.MapContainer) {
	container.RegisterGuard("order.hasPositiveTotal", func(ctx context.Context, input *fsmdef.TransitionInput, params map[string]any) (bool, error) {
		ge, ok := input.Model.(*fsmhost.GormEntity)
		if !ok {
			return true, nil
		}
		order, ok := ge.Model.(*models.Order)
		if !ok {
			return true, nil
		}
		return order.TotalCents > 0, nil
	})
	container.RegisterAction("order.sendReceipt", func(ctx context.Context, input *fsmdef.TransitionInput, params map[string]any) error {
		logging.L().Info("order receipt queued", zap.String("toState", input.ToState))
		return nil
	})
}
