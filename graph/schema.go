package graph

// Schema is the public GraphQL contract.
const Schema = `
schema {
  query: Query
  mutation: Mutation
}

type Query {
  currentMember: Member
  events: [Event!]
  event(slug: String!): Event
  dream(eventId: ID!, slug: String!): Dream
  dreams(eventId: ID!, textSearchTerm: String): [Dream]
  members: [Member]
}

type Mutation {
  createEvent(
    adminEmail: String!
    slug: String!
    title: String!
    currency: String!
    description: String
    registrationPolicy: RegistrationPolicy!
  ): Event!
  editEvent(
    slug: String
    title: String
    registrationPolicy: RegistrationPolicy
  ): Event!

  createDream(
    eventId: ID!
    title: String!
    slug: String!
    description: String
    summary: String
    minGoal: Int
    maxGoal: Int
    images: [ImageInput]
    budgetItems: [BudgetItemInput]
  ): Dream
  editDream(
    dreamId: ID!
    title: String
    slug: String
    description: String
    summary: String
    minGoal: Int
    maxGoal: Int
    images: [ImageInput]
    budgetItems: [BudgetItemInput]
    published: Boolean
  ): Dream

  addComment(dreamId: ID!, content: String!): Dream
  deleteComment(dreamId: ID!, commentId: ID!): Dream

  sendMagicLink(email: String!, eventId: ID!): Boolean
  joinEvent(eventId: ID!): Member
  updateProfile(name: String, avatar: String): Member
  inviteMembers(emails: String!): [Member]
  updateMember(memberId: ID!, isApproved: Boolean, isAdmin: Boolean): Member
  deleteMember(memberId: ID!): Member

  approveForGranting(dreamId: ID!, approved: Boolean!): Dream
  updateGrantingSettings(
    currency: String
    grantsPerMember: Int
    maxGrantsToDream: Int
    totalBudget: Int
    grantValue: Int
    grantingOpens: Date
    grantingCloses: Date
    dreamCreationCloses: Date
  ): Event
  giveGrant(dreamId: ID!, value: Int!): Grant
  deleteGrant(grantId: ID!): Grant
  reclaimGrants(dreamId: ID!): Dream
  preOrPostFund(dreamId: ID!, value: Int!): Grant
  toggleFavorite(dreamId: ID!): Dream
}

type Event {
  id: ID!
  slug: String!
  title: String!
  description: String
  members: [Member!]!
  numberOfApprovedMembers: Int
  dreams: [Dream!]
  registrationPolicy: RegistrationPolicy!
  currency: String!
  totalBudget: Int
  totalBudgetGrants: Int
  remainingGrants: Int
  grantValue: Int
  grantsPerMember: Int
  maxGrantsToDream: Int
  dreamCreationCloses: Date
  dreamCreationIsOpen: Boolean
  grantingOpens: Date
  grantingCloses: Date
  grantingIsOpen: Boolean
  grantingHasClosed: Boolean
}

scalar Date

enum RegistrationPolicy {
  OPEN
  REQUEST_TO_JOIN
  INVITE_ONLY
}

type Member {
  id: ID!
  event: Event!
  email: String!
  name: String
  avatar: String
  isAdmin: Boolean!
  isApproved: Boolean!
  verifiedEmail: Boolean!
  createdAt: Date
  availableGrants: Int
  givenGrants: [Grant]
}

type Dream {
  id: ID!
  event: Event!
  slug: String!
  title: String!
  description: String
  summary: String
  images: [Image!]
  members: [Member]!
  minGoalGrants: Int
  maxGoalGrants: Int
  minGoal: Int
  maxGoal: Int
  comments: [Comment]
  numberOfComments: Int
  currentNumberOfGrants: Int
  budgetItems: [BudgetItem!]
  approved: Boolean
  published: Boolean
  favorite: Boolean
}

type Grant {
  id: ID!
  dream: Dream!
  value: Int!
  reclaimed: Boolean!
  type: GrantType!
}

enum GrantType {
  PRE_FUND
  USER
  POST_FUND
}

type Image {
  small: String!
  large: String!
}

input ImageInput {
  small: String
  large: String
}

type BudgetItem {
  description: String!
  amount: String!
}

input BudgetItemInput {
  description: String!
  amount: String!
}

type Comment {
  id: ID!
  author: Member
  createdAt: Date!
  content: String!
}
`
