package authz

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/mindmaxed/entitlement-sync/server/service"
)

// Client answers plan-membership and profile questions from the
// entitlement service.
type Client struct {
	conn grpc.ClientConnInterface
}

func New(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

func (c *Client) HasPlan(ctx context.Context, userID, planID string) (bool, error) {
	in, err := structpb.NewStruct(map[string]any{
		service.FieldUserID: userID,
		service.FieldPlanID: planID,
	})
	if err != nil {
		return false, fmt.Errorf("error encoding request: %w", err)
	}

	out := new(wrapperspb.BoolValue)
	err = c.conn.Invoke(ctx, service.HasPlanMethod, in, out)
	if status.Code(err) == codes.NotFound {
		// no record yet: the user never subscribed
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("error checking plan %s: %w", planID, err)
	}

	return out.GetValue(), nil
}

func (c *Client) IsWhitelisted(ctx context.Context, userID string) (bool, error) {
	out := new(structpb.Struct)
	err := c.conn.Invoke(ctx, service.GetRecordMethod, wrapperspb.String(userID), out)
	if status.Code(err) == codes.NotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("error fetching profile: %w", err)
	}

	return out.GetFields()[service.FieldIsWhitelisted].GetBoolValue(), nil
}
